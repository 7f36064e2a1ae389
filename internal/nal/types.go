// Package nal splits Annex-B H.264/H.265 byte buffers into NAL units and
// extracts resolution/framerate from sequence parameter sets.
package nal

// Type identifies an H.264/H.265 NAL unit by its header value.
type Type uint8

const (
	TypeUnspecified Type = 0
	TypeSlice       Type = 1 // non-IDR picture
	TypeDPA         Type = 2
	TypeDPB         Type = 3
	TypeDPC         Type = 4
	TypeIDR         Type = 5 // IDR picture (keyframe)
	TypeSEI         Type = 6
	TypeSPS         Type = 7
	TypePPS         Type = 8
	TypeAUD         Type = 9
	TypeEndSequence Type = 10
	TypeEndStream   Type = 11
	TypeFiller      Type = 12
	TypeFUA         Type = 28 // RTP fragmentation unit
	TypeFUB         Type = 29

	// H.265 types carry distinct codes in the same 6-bit NAL header field.
	TypeHEVCIDRWRADL Type = 19
	TypeHEVCIDRNLP   Type = 20
	TypeHEVCVPS      Type = 32
	TypeHEVCSPS      Type = 33
	TypeHEVCPPS      Type = 34
)

// Codec is the bitstream family a NAL unit belongs to.
type Codec int

const (
	CodecUnknown Codec = iota
	CodecH264
	CodecH265
)

// Unit is a single NAL unit carved out of an Annex-B buffer, including its
// start code prefix.
type Unit struct {
	Type      Type
	Data      []byte // includes the 3- or 4-byte start code
	PTS       int64  // microseconds
	DTS       int64  // microseconds
	Keyframe  bool
	Width     int // populated only when Type == TypeSPS/TypeHEVCSPS and parse succeeded
	Height    int
	Framerate int
}

// SPSInfo is the subset of sequence-parameter-set fields this system cares
// about: geometry and timing, not the full H.264 field set.
type SPSInfo struct {
	Width      int
	Height     int
	Framerate  int
	Profile    int
	Level      int
	Interlaced bool
}

// isKeyframeType reports whether a NAL type must be treated as a keyframe:
// IDR pictures and the two parameter sets that configure the decoder.
func isKeyframeType(t Type) bool {
	return t == TypeIDR || t == TypeSPS || t == TypePPS ||
		t == TypeHEVCIDRWRADL || t == TypeHEVCIDRNLP || t == TypeHEVCVPS || t == TypeHEVCSPS || t == TypeHEVCPPS
}
