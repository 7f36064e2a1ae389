package config

import (
	"fmt"

	"github.com/fluxvision/ingest/internal/camerasession"
	"github.com/fluxvision/ingest/internal/coordinator"
	"github.com/fluxvision/ingest/internal/decoder"
	"github.com/fluxvision/ingest/internal/gpuaccount"
	"github.com/fluxvision/ingest/internal/nal"
)

// ToCoordinatorConfig builds the coordinator.Config this file's pool and
// GPU sections describe.
func (c Config) ToCoordinatorConfig() coordinator.Config {
	return coordinator.Config{
		NetworkWorkers: c.Pools.NetworkWorkers,
		DecodeWorkers:  c.Pools.DecodeWorkers,
		EnableAffinity: c.Pools.EnableAffinity,
		GPUDeviceID:    c.GPU.DeviceID,
		GPU: gpuaccount.Config{
			MaxGPUMemoryBytes: c.GPU.MaxMemoryMB * 1024 * 1024,
			EnableWarnings:    c.GPU.EnableWarnings,
		},
	}
}

// ToSessionConfig converts one camera's YAML entry into the
// camerasession.Config the coordinator expects.
func (c CameraConfig) ToSessionConfig() (camerasession.Config, error) {
	quality, err := parseQuality(c.Quality)
	if err != nil {
		return camerasession.Config{}, fmt.Errorf("camera %q: %w", c.ID, err)
	}
	codec, err := parseCodec(c.Codec)
	if err != nil {
		return camerasession.Config{}, fmt.Errorf("camera %q: %w", c.ID, err)
	}

	return camerasession.Config{
		ID:                   c.ID,
		MainURL:              c.MainURL,
		SubURL:               c.SubURL,
		Username:             c.Username,
		Password:             c.Password,
		Quality:              quality,
		AutoReconnect:        c.AutoReconnect,
		PacketQueueSize:      c.PacketQueueSize,
		PreferHardwareDecode: c.PreferHardwareDecode,
		MaxWidth:             c.MaxWidth,
		MaxHeight:            c.MaxHeight,
		Codec:                codec,
	}, nil
}

func parseQuality(s string) (decoder.Quality, error) {
	switch s {
	case "paused":
		return decoder.QualityPaused, nil
	case "thumbnail":
		return decoder.QualityThumbnail, nil
	case "grid_view":
		return decoder.QualityGridView, nil
	case "focused":
		return decoder.QualityFocused, nil
	case "fullscreen":
		return decoder.QualityFullscreen, nil
	default:
		return 0, fmt.Errorf("unknown quality %q", s)
	}
}

func parseCodec(s string) (nal.Codec, error) {
	switch s {
	case "h264":
		return nal.CodecH264, nil
	case "h265":
		return nal.CodecH265, nil
	default:
		return nal.CodecUnknown, fmt.Errorf("unknown codec %q", s)
	}
}
