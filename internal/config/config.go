// Package config loads the YAML configuration file that describes every
// camera this process should ingest, plus the worker pool and GPU memory
// sizing for the host it runs on.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full on-disk configuration for one ingest process.
type Config struct {
	InstanceID string         `yaml:"instance_id"`
	Server     ServerConfig   `yaml:"server"`
	Pools      PoolConfig     `yaml:"pools"`
	GPU        GPUConfig      `yaml:"gpu"`
	Cameras    []CameraConfig `yaml:"cameras"`
}

// ServerConfig configures the health and metrics HTTP endpoints.
type ServerConfig struct {
	HealthAddr       string `yaml:"health_addr"`
	MetricsAddr      string `yaml:"metrics_addr"`
	ShutdownTimeoutS int    `yaml:"shutdown_timeout_s"`
}

// PoolConfig sizes the network and decode worker pools shared by every
// camera.
type PoolConfig struct {
	NetworkWorkers int  `yaml:"network_workers"`
	DecodeWorkers  int  `yaml:"decode_workers"`
	EnableAffinity bool `yaml:"enable_affinity"`
}

// GPUConfig bounds the GPU memory every decoder is allowed to claim in
// total.
type GPUConfig struct {
	DeviceID       int    `yaml:"device_id"`
	MaxMemoryMB    uint64 `yaml:"max_memory_mb"`
	EnableWarnings bool   `yaml:"enable_warnings"`
}

// CameraConfig describes one camera's RTSP endpoints and decode policy.
type CameraConfig struct {
	ID       string `yaml:"id"`
	MainURL  string `yaml:"main_url"`
	SubURL   string `yaml:"sub_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	Quality              string `yaml:"quality"` // paused, thumbnail, grid_view, focused, fullscreen
	AutoReconnect        bool   `yaml:"auto_reconnect"`
	PacketQueueSize      int    `yaml:"packet_queue_size"`
	PreferHardwareDecode bool   `yaml:"prefer_hardware_decode"`
	MaxWidth             int    `yaml:"max_width"`
	MaxHeight            int    `yaml:"max_height"`
	Codec                string `yaml:"codec"` // h264, h265
}

// Load reads and validates a YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return &cfg, nil
}
