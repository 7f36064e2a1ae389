package decoder

import (
	"log/slog"

	"github.com/fluxvision/ingest/internal/nal"
)

// Kind selects which decoder variant to build.
type Kind int

const (
	KindAuto Kind = iota // prefer hardware, fall back to software
	KindHardware
	KindSoftware
)

// Capabilities summarizes what decode paths this host can offer, mirroring
// the information the original decoder factory exposed about CUDA devices,
// adapted to VA-API element availability.
type Capabilities struct {
	HardwareAvailable bool
	SoftwareAvailable bool // always true: software decode has no external dependency
	DeviceCount       int
	Recommended       string
}

// Probe reports decoder capabilities for codec without allocating a
// pipeline.
func Probe(codec nal.Codec) Capabilities {
	hwAvailable := vaapiElementAvailable(codec)
	recommended := "software"
	if hwAvailable {
		recommended = "hardware"
	}
	return Capabilities{
		HardwareAvailable: hwAvailable,
		SoftwareAvailable: true,
		DeviceCount:       renderNodeCount(),
		Recommended:       recommended,
	}
}

// New builds a decoder according to kind, falling back from hardware to
// software on KindAuto when no VA-API element is available. An explicit
// KindHardware request whose hardware pipeline cannot be built also falls
// back to software, with a logged warning.
func New(kind Kind, cfg Config) (Decoder, error) {
	switch kind {
	case KindHardware:
		d, err := NewHardwareDecoder(cfg)
		if err == nil {
			return d, nil
		}
		slog.Warn("decoder: hardware decoder requested but unavailable, falling back to software", "error", err)
		return NewSoftwareDecoder(cfg)
	case KindSoftware:
		return NewSoftwareDecoder(cfg)
	default: // KindAuto
		if cfg.PreferHardware && vaapiElementAvailable(cfg.Codec) {
			d, err := NewHardwareDecoder(cfg)
			if err == nil {
				return d, nil
			}
			slog.Warn("decoder: hardware path failed despite capability probe, falling back to software", "error", err)
		}
		return NewSoftwareDecoder(cfg)
	}
}

// RecommendedKind returns the kind New(KindAuto, ...) would actually pick,
// useful for logging at camera-session startup.
func RecommendedKind(cfg Config) Kind {
	if cfg.PreferHardware && vaapiElementAvailable(cfg.Codec) {
		return KindHardware
	}
	return KindSoftware
}
