package decoder

import "fmt"

// NewHardwareDecoder builds a Decoder backed by a VA-API GStreamer pipeline
// (vaapih264dec/vaapih265dec, falling back to vaapidecodebin), producing
// NV12 frames. Returns an error if no VA-API decode element can be
// constructed on this host; New falls back to the software variant in that
// case.
func NewHardwareDecoder(cfg Config) (Decoder, error) {
	d, err := buildPipeline(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("decoder: hardware path unavailable: %w", err)
	}
	return d, nil
}
