package nal

// highProfiles lists profile_idc values that carry the chroma-format and
// bit-depth fields in the SPS (H.264 Annex A high-profile family).
var highProfiles = map[int]bool{
	100: true, 110: true, 122: true, 244: true,
	44: true, 83: true, 86: true, 118: true, 128: true,
}

// ParseSPS extracts width, height, framerate, profile and level from an SPS
// payload with the NAL header byte already stripped. It returns false only
// for a payload shorter than three bytes or one whose decoded width or
// height is not positive; it does not stop at an individual field, since
// reads past the end of the payload yield zeros. Framerate is set to 25
// when the SPS carries no VUI timing info.
func ParseSPS(payload []byte) (SPSInfo, bool) {
	if len(payload) < 3 {
		return SPSInfo{}, false
	}

	r := NewBitReader(payload)
	var sps SPSInfo

	sps.Profile = int(r.ReadBits(8))
	r.ReadBits(8) // constraint_set flags
	sps.Level = int(r.ReadBits(8))

	r.ReadUE() // seq_parameter_set_id

	if highProfiles[sps.Profile] {
		chromaFormatIDC := r.ReadUE()
		if chromaFormatIDC == 3 {
			r.ReadBits(1) // separate_colour_plane_flag
		}
		r.ReadUE()    // bit_depth_luma_minus8
		r.ReadUE()    // bit_depth_chroma_minus8
		r.ReadBits(1) // qpprime_y_zero_transform_bypass_flag

		if r.ReadBits(1) == 1 { // seq_scaling_matrix_present_flag
			for i := 0; i < 8; i++ {
				if r.ReadBits(1) == 1 {
					n := 16
					if i >= 6 {
						n = 64
					}
					for j := 0; j < n; j++ {
						r.ReadSE()
					}
				}
			}
		}
	}

	r.ReadUE() // log2_max_frame_num_minus4

	picOrderCntType := r.ReadUE()
	switch picOrderCntType {
	case 0:
		r.ReadUE() // log2_max_pic_order_cnt_lsb_minus4
	case 1:
		r.ReadBits(1) // delta_pic_order_always_zero_flag
		r.ReadSE()    // offset_for_non_ref_pic
		r.ReadSE()    // offset_for_top_to_bottom_field
		numRefFrames := r.ReadUE()
		for i := uint32(0); i < numRefFrames; i++ {
			r.ReadSE() // offset_for_ref_frame
		}
	}

	r.ReadUE()    // num_ref_frames
	r.ReadBits(1) // gaps_in_frame_num_value_allowed_flag

	picWidthInMbsMinus1 := r.ReadUE()
	picHeightInMapUnitsMinus1 := r.ReadUE()

	sps.Width = int(picWidthInMbsMinus1+1) * 16
	sps.Height = int(picHeightInMapUnitsMinus1+1) * 16

	frameMbsOnlyFlag := r.ReadBits(1)
	sps.Interlaced = frameMbsOnlyFlag == 0
	if frameMbsOnlyFlag == 0 {
		sps.Height *= 2
		r.ReadBits(1) // mb_adaptive_frame_field_flag
	}

	r.ReadBits(1) // direct_8x8_inference_flag

	if r.ReadBits(1) == 1 { // frame_cropping_flag
		left := r.ReadUE()
		right := r.ReadUE()
		top := r.ReadUE()
		bottom := r.ReadUE()
		sps.Width -= int(left+right) * 2
		sps.Height -= int(top+bottom) * 2
	}

	if r.ReadBits(1) == 1 { // vui_parameters_present_flag
		if r.ReadBits(1) == 1 { // aspect_ratio_info_present_flag
			aspectRatioIDC := r.ReadBits(8)
			if aspectRatioIDC == 255 { // Extended_SAR
				r.ReadBits(16)
				r.ReadBits(16)
			}
		}
		if r.ReadBits(1) == 1 { // overscan_info_present_flag
			r.ReadBits(1)
		}
		if r.ReadBits(1) == 1 { // video_signal_type_present_flag
			r.ReadBits(3) // video_format
			r.ReadBits(1) // video_full_range_flag
			if r.ReadBits(1) == 1 {
				r.ReadBits(8) // colour_primaries
				r.ReadBits(8) // transfer_characteristics
				r.ReadBits(8) // matrix_coefficients
			}
		}
		if r.ReadBits(1) == 1 { // chroma_loc_info_present_flag
			r.ReadUE()
			r.ReadUE()
		}
		if r.ReadBits(1) == 1 { // timing_info_present_flag
			numUnitsInTick := r.ReadBits(32)
			timeScale := r.ReadBits(32)
			if numUnitsInTick > 0 {
				sps.Framerate = int(timeScale / (2 * numUnitsInTick))
			}
		}
	}

	if sps.Framerate == 0 {
		sps.Framerate = 25
	}
	if sps.Width <= 0 || sps.Height <= 0 {
		return SPSInfo{}, false
	}

	return sps, true
}
