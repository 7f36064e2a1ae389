package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks cfg for required fields and fills in defaults for
// anything left at its zero value.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.Server.HealthAddr == "" {
		cfg.Server.HealthAddr = ":8080"
	}
	if cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = ":9090"
	}
	if cfg.Server.ShutdownTimeoutS <= 0 {
		cfg.Server.ShutdownTimeoutS = 5
	}

	if cfg.Pools.NetworkWorkers <= 0 {
		cfg.Pools.NetworkWorkers = 8
	}
	if cfg.Pools.DecodeWorkers <= 0 {
		cfg.Pools.DecodeWorkers = 4
	}

	seen := make(map[string]bool, len(cfg.Cameras))
	for i := range cfg.Cameras {
		cam := &cfg.Cameras[i]
		if cam.ID == "" {
			return fmt.Errorf("cameras[%d]: id is required", i)
		}
		if seen[cam.ID] {
			return fmt.Errorf("cameras[%d]: duplicate camera id %q", i, cam.ID)
		}
		seen[cam.ID] = true

		if cam.MainURL == "" {
			return fmt.Errorf("camera %q: main_url is required", cam.ID)
		}
		if cam.PacketQueueSize <= 0 {
			cam.PacketQueueSize = 64
		}
		if cam.MaxWidth <= 0 {
			cam.MaxWidth = 1920
		}
		if cam.MaxHeight <= 0 {
			cam.MaxHeight = 1080
		}
		if cam.Quality == "" {
			cam.Quality = "grid_view"
		}
		if cam.Codec == "" {
			cam.Codec = "h264"
		}
		switch cam.Codec {
		case "h264", "h265":
		default:
			return fmt.Errorf("camera %q: codec must be h264 or h265, got %q", cam.ID, cam.Codec)
		}
		switch cam.Quality {
		case "paused", "thumbnail", "grid_view", "focused", "fullscreen":
		default:
			return fmt.Errorf("camera %q: unknown quality %q", cam.ID, cam.Quality)
		}
	}

	return nil
}
