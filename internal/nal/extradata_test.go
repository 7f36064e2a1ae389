package nal

import "testing"

// configRecord builds a minimal AVCDecoderConfigurationRecord wrapping one
// SPS and one PPS, matching ISO/IEC 14496-15 §5.2.4.1's layout closely
// enough to drive parseConfigRecord: version/profile/compat/level/
// lengthSizeMinusOne, then a count-prefixed, 2-byte-length-prefixed run of
// SPS followed by the same for PPS.
func configRecord(sps, pps []byte) []byte {
	rec := []byte{0x01, 0x42, 0x00, 0x0A, 0xFF}
	rec = append(rec, 0xE1) // 1 SPS (top 3 bits reserved-as-ones per spec, low 5 bits = count)
	rec = append(rec, byte(len(sps)>>8), byte(len(sps)))
	rec = append(rec, sps...)
	rec = append(rec, 0x01) // 1 PPS
	rec = append(rec, byte(len(pps)>>8), byte(len(pps)))
	rec = append(rec, pps...)
	return rec
}

func TestParseExtradataConfigRecord(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x0A}
	pps := []byte{0x68, 0xCE, 0x01, 0x0F}
	units := ParseExtradata(CodecH264, configRecord(sps, pps))

	if len(units) != 2 {
		t.Fatalf("got %d units, want 2", len(units))
	}
	if units[0].Type != TypeSPS || !units[0].Keyframe {
		t.Errorf("unit 0: type=%v keyframe=%v, want SPS/true", units[0].Type, units[0].Keyframe)
	}
	if units[1].Type != TypePPS || !units[1].Keyframe {
		t.Errorf("unit 1: type=%v keyframe=%v, want PPS/true", units[1].Type, units[1].Keyframe)
	}
	if startCodeLen(units[0].Data) != 4 {
		t.Errorf("expected 4-byte start code prefix, got %x", units[0].Data[:4])
	}
	if startCodeLen(units[1].Data) != 4 {
		t.Errorf("expected 4-byte start code prefix, got %x", units[1].Data[:4])
	}
}

func TestParseExtradataConfigRecordTruncated(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x0A}
	full := configRecord(sps, []byte{0x68, 0xCE, 0x01, 0x0F})
	truncated := full[:len(full)-2] // cut off the tail of the PPS body

	units := ParseExtradata(CodecH264, truncated)
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1 (SPS only, PPS undersized)", len(units))
	}
	if units[0].Type != TypeSPS {
		t.Errorf("unit 0: type=%v, want SPS", units[0].Type)
	}
}

func TestParseExtradataAnnexBFallback(t *testing.T) {
	data := hexUnits(t)
	units := ParseExtradata(CodecH264, data)
	if len(units) != 3 {
		t.Fatalf("got %d units, want 3", len(units))
	}
	if units[0].Type != TypeSPS || units[1].Type != TypePPS {
		t.Errorf("got types %v, %v; want SPS, PPS", units[0].Type, units[1].Type)
	}
}

func TestParseExtradataTooShort(t *testing.T) {
	units := ParseExtradata(CodecH264, []byte{0x01, 0x02})
	if units != nil {
		t.Errorf("got %v, want nil for undersized input", units)
	}
}
