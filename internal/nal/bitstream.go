package nal

// startCodeLen returns the length of an Annex-B start code beginning at
// data[0], or 0 if none is present.
func startCodeLen(data []byte) int {
	if len(data) >= 4 && data[0] == 0 && data[1] == 0 && data[2] == 0 && data[3] == 1 {
		return 4
	}
	if len(data) >= 3 && data[0] == 0 && data[1] == 0 && data[2] == 1 {
		return 3
	}
	return 0
}

// findStartCodes returns the byte offset of every Annex-B start code in
// data, in ascending order.
func findStartCodes(data []byte) []int {
	var positions []int
	i := 0
	for i+2 < len(data) {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			positions = append(positions, i)
			i += 3
			continue
		}
		if i+3 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 0 && data[i+3] == 1 {
			positions = append(positions, i)
			i += 4
			continue
		}
		i++
	}
	return positions
}

// classify determines the codec family and NAL type of a unit from its
// payload immediately after the start code.
func classify(codec Codec, header []byte) (Type, bool) {
	if len(header) == 0 {
		return TypeUnspecified, false
	}
	switch codec {
	case CodecH265:
		t := Type((header[0] >> 1) & 0x3F)
		return t, isKeyframeType(t)
	default: // CodecH264 and CodecUnknown both use the H.264 5-bit field
		t := Type(header[0] & 0x1F)
		return t, isKeyframeType(t)
	}
}

// ParsePacket splits a byte buffer that may contain zero or more
// concatenated Annex-B NAL units and returns each as a Unit stamped with
// timestamp. SPS units are additionally run through ParseSPS to populate
// their width/height/framerate fields. The parser holds no state across
// calls: a buffer without a start code yields zero units.
func ParsePacket(codec Codec, data []byte, timestamp int64) []Unit {
	starts := findStartCodes(data)
	if len(starts) == 0 {
		return nil
	}

	units := make([]Unit, 0, len(starts))
	for i, start := range starts {
		end := len(data)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		raw := data[start:end]
		if len(raw) == 0 {
			continue
		}

		scLen := startCodeLen(raw)
		if scLen == 0 || scLen >= len(raw) {
			continue
		}
		header := raw[scLen:]

		t, keyframe := classify(codec, header)
		if t == TypeUnspecified {
			continue
		}

		unit := Unit{
			Type:     t,
			Data:     raw,
			PTS:      timestamp,
			DTS:      timestamp,
			Keyframe: keyframe,
		}

		if t == TypeSPS || t == TypeHEVCSPS {
			if sps, ok := ParseSPS(header[1:]); ok {
				unit.Width = sps.Width
				unit.Height = sps.Height
				unit.Framerate = sps.Framerate
			}
		}

		units = append(units, unit)
	}
	return units
}

// IsKeyframe reports whether a raw NAL unit (with start code intact) is a
// keyframe unit without requiring a full ParsePacket call.
func IsKeyframe(codec Codec, raw []byte) bool {
	scLen := startCodeLen(raw)
	if scLen == 0 || scLen >= len(raw) {
		return false
	}
	_, keyframe := classify(codec, raw[scLen:])
	return keyframe
}
