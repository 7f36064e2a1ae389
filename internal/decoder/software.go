package decoder

import "fmt"

// NewSoftwareDecoder builds a Decoder backed by avdec_h264/avdec_h265,
// producing YUV420P frames. This is the fallback path when VA-API is
// unavailable, or the forced choice when a caller sets
// Config.PreferHardware = false.
func NewSoftwareDecoder(cfg Config) (Decoder, error) {
	d, err := buildPipeline(cfg, false)
	if err != nil {
		return nil, fmt.Errorf("decoder: software path failed: %w", err)
	}
	return d, nil
}
