// Package h264 holds the H.264 bitstream helpers used by the packagers and
// container writers.
package h264

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// NALUType returns the type of a NAL unit without start code.
func NALUType(nalu []byte) h264.NALUType {
	if len(nalu) == 0 {
		return 0
	}
	return h264.NALUType(nalu[0] & 0x1F)
}

// SplitAnnexB splits an Annex-B access unit into NAL units.
func SplitAnnexB(data []byte) ([][]byte, error) {
	var annexB h264.AnnexB
	if err := annexB.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to parse annex-b: %w", err)
	}
	return annexB, nil
}

// ParameterSets returns the first SPS and PPS found in nalus.
func ParameterSets(nalus [][]byte) (sps, pps []byte) {
	for _, nalu := range nalus {
		switch NALUType(nalu) {
		case h264.NALUTypeSPS:
			if sps == nil {
				sps = nalu
			}
		case h264.NALUTypePPS:
			if pps == nil {
				pps = nalu
			}
		}
	}
	return sps, pps
}

// FrameNALUs drops parameter sets and access unit delimiters, which travel
// out of band in decoder configuration records.
func FrameNALUs(nalus [][]byte) [][]byte {
	out := make([][]byte, 0, len(nalus))
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		switch NALUType(nalu) {
		case h264.NALUTypeSPS, h264.NALUTypePPS, h264.NALUTypeAccessUnitDelimiter:
			continue
		}
		out = append(out, nalu)
	}
	return out
}

// IsKeyFrame reports whether the first slice NAL unit is an IDR slice.
// SEI, filler and other non-VCL units in front of it are skipped.
func IsKeyFrame(nalus [][]byte) bool {
	for _, nalu := range nalus {
		typ := NALUType(nalu)
		if typ >= h264.NALUTypeNonIDR && typ <= h264.NALUTypeIDR {
			return typ == h264.NALUTypeIDR
		}
	}
	return false
}

// AVCC frames NAL units with 4-byte big-endian length prefixes.
func AVCC(nalus [][]byte) ([]byte, error) {
	return h264.AVCC(nalus).Marshal()
}

// Dimensions decodes the picture size carried by an SPS.
func Dimensions(sps []byte) (width, height int, err error) {
	var s h264.SPS
	if err := s.Unmarshal(sps); err != nil {
		return 0, 0, fmt.Errorf("failed to parse sps: %w", err)
	}
	return s.Width(), s.Height(), nil
}
