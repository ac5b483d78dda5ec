// Package aac parses ADTS framing and builds AudioSpecificConfig records.
package aac

import (
	"bytes"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/icza/bitio"
)

const adtsSyncWord = 0xFFF

// sampleRates is indexed by the 4-bit sampling_frequency_index.
var sampleRates = []int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// ADTSHeader is a decoded ADTS fixed and variable header.
type ADTSHeader struct {
	ObjectType   int // profile + 1
	SampleRate   int
	ChannelCount int
	FrameLength  int // Header included
	HeaderLength int // 7, or 9 with CRC
}

// HasADTS reports whether data starts with an ADTS sync word.
func HasADTS(data []byte) bool {
	return len(data) >= 7 && data[0] == 0xFF && data[1]&0xF0 == 0xF0
}

// ParseADTS decodes the ADTS header at the start of data. Packets without
// CRC are decoded by mediacommon; CRC protected headers, which it rejects,
// are read field by field.
func ParseADTS(data []byte) (*ADTSHeader, error) {
	if len(data) < 7 {
		return nil, fmt.Errorf("adts header too short: %d bytes", len(data))
	}
	if data[1]&0x01 == 0 {
		return parseProtectedADTS(data)
	}

	var pkts mpeg4audio.ADTSPackets
	if err := pkts.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("invalid adts packet: %w", err)
	}
	p := pkts[0]
	return &ADTSHeader{
		ObjectType:   int(p.Type),
		SampleRate:   p.SampleRate,
		ChannelCount: p.ChannelCount,
		FrameLength:  7 + len(p.AU),
		HeaderLength: 7,
	}, nil
}

func parseProtectedADTS(data []byte) (*ADTSHeader, error) {
	if len(data) < 9 {
		return nil, fmt.Errorf("adts header too short: %d bytes", len(data))
	}

	r := bitio.NewReader(bytes.NewReader(data[:7]))
	sync := r.TryReadBits(12)
	r.TryReadBits(1) // id
	layer := r.TryReadBits(2)
	r.TryReadBool() // protection absent
	profile := r.TryReadBits(2)
	srIndex := r.TryReadBits(4)
	r.TryReadBool() // private bit
	channelConfig := r.TryReadBits(3)
	r.TryReadBits(4) // copy and home flags, copyright id bit and start
	frameLength := r.TryReadBits(13)
	r.TryReadBits(11) // buffer fullness
	r.TryReadBits(2)  // raw data blocks
	if r.TryError != nil {
		return nil, fmt.Errorf("failed to read adts header: %w", r.TryError)
	}

	if sync != adtsSyncWord {
		return nil, fmt.Errorf("invalid adts sync word 0x%03x", sync)
	}
	if layer != 0 {
		return nil, fmt.Errorf("invalid adts layer %d", layer)
	}
	if int(srIndex) >= len(sampleRates) {
		return nil, fmt.Errorf("invalid sample rate index %d", srIndex)
	}
	if channelConfig == 0 {
		return nil, fmt.Errorf("unsupported channel configuration 0")
	}

	h := &ADTSHeader{
		ObjectType:   int(profile) + 1,
		SampleRate:   sampleRates[srIndex],
		ChannelCount: int(channelConfig),
		FrameLength:  int(frameLength),
		HeaderLength: 9,
	}
	if channelConfig == 7 {
		h.ChannelCount = 8
	}
	if h.FrameLength < h.HeaderLength {
		return nil, fmt.Errorf("invalid adts frame length %d", h.FrameLength)
	}
	return h, nil
}

// StripADTS returns the raw AAC payload of data. Data without an ADTS
// header is returned unchanged.
func StripADTS(data []byte) []byte {
	if !HasADTS(data) {
		return data
	}
	h, err := ParseADTS(data)
	if err != nil || len(data) < h.HeaderLength {
		return data
	}
	end := h.FrameLength
	if end > len(data) {
		end = len(data)
	}
	return data[h.HeaderLength:end]
}
