package h264

import (
	"encoding/binary"
	"fmt"
)

// DecoderConfigurationRecord builds an AVCDecoderConfigurationRecord for
// one SPS and one PPS with 4-byte NAL length fields.
func DecoderConfigurationRecord(sps, pps []byte) ([]byte, error) {
	if len(sps) < 4 {
		return nil, fmt.Errorf("sps too short: %d bytes", len(sps))
	}
	if len(pps) == 0 {
		return nil, fmt.Errorf("pps is empty")
	}

	buf := make([]byte, 0, 11+len(sps)+len(pps))
	buf = append(buf,
		0x01,   // configurationVersion
		sps[1], // AVCProfileIndication
		sps[2], // profile_compatibility
		sps[3], // AVCLevelIndication
		0xFF,   // lengthSizeMinusOne = 3
		0xE1,   // numOfSequenceParameterSets = 1
	)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(sps)))
	buf = append(buf, sps...)
	buf = append(buf, 0x01)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(pps)))
	buf = append(buf, pps...)
	return buf, nil
}

// ParseDecoderConfigurationRecord extracts the first SPS and PPS from an
// avcC payload.
func ParseDecoderConfigurationRecord(avcc []byte) (sps, pps []byte, ok bool) {
	if len(avcc) < 7 || avcc[0] != 0x01 {
		return nil, nil, false
	}
	i := 5
	numSps := int(avcc[i] & 0x1F)
	i++
	for n := 0; n < numSps; n++ {
		if i+2 > len(avcc) {
			return nil, nil, false
		}
		l := int(binary.BigEndian.Uint16(avcc[i:]))
		i += 2
		if i+l > len(avcc) {
			return nil, nil, false
		}
		if sps == nil {
			sps = avcc[i : i+l]
		}
		i += l
	}
	if i >= len(avcc) {
		return nil, nil, false
	}
	numPps := int(avcc[i])
	i++
	for n := 0; n < numPps; n++ {
		if i+2 > len(avcc) {
			return nil, nil, false
		}
		l := int(binary.BigEndian.Uint16(avcc[i:]))
		i += 2
		if i+l > len(avcc) {
			return nil, nil, false
		}
		if pps == nil {
			pps = avcc[i : i+l]
		}
		i += l
	}
	return sps, pps, len(sps) > 0 && len(pps) > 0
}

// ParseParameterSets accepts either an Annex-B buffer or an avcC record.
func ParseParameterSets(data []byte) (sps, pps []byte, err error) {
	if len(data) > 0 && data[0] == 0x01 {
		if sps, pps, ok := ParseDecoderConfigurationRecord(data); ok {
			return sps, pps, nil
		}
		return nil, nil, fmt.Errorf("invalid avcC record")
	}

	nalus, err := SplitAnnexB(data)
	if err != nil {
		return nil, nil, err
	}
	sps, pps = ParameterSets(nalus)
	if sps == nil || pps == nil {
		return nil, nil, fmt.Errorf("parameter sets not found")
	}
	return sps, pps, nil
}
