package flv

import (
	"github.com/babelcloud/pushscreen/internal/capture/h264"
)

// Video tag header values
const (
	FrameTypeKey   = 1
	FrameTypeInter = 2
	CodecIDAVC     = 7

	AVCPacketSequenceHeader = 0
	AVCPacketNALU           = 1
)

// Audio tag header values
const (
	// SoundHeaderAAC is AAC, 44 kHz, 16-bit, stereo. FLV requires these
	// rate and channel bits for AAC regardless of the actual stream.
	SoundHeaderAAC = 0xAF

	AACPacketSequenceHeader = 0
	AACPacketRaw            = 1
)

// VideoTagHeaderSize is the FLV video tag header in front of AVC data.
const VideoTagHeaderSize = 5

// AudioTagHeaderSize is the FLV audio tag header in front of AAC data.
const AudioTagHeaderSize = 2

func videoHeader(key bool, packetType byte) []byte {
	frameType := byte(FrameTypeInter)
	if key {
		frameType = FrameTypeKey
	}
	// CompositionTime is always zero: encoder output has no B-frames.
	return []byte{frameType<<4 | CodecIDAVC, packetType, 0x00, 0x00, 0x00}
}

// VideoConfigBody builds an AVC sequence header tag body.
func VideoConfigBody(sps, pps []byte) ([]byte, error) {
	record, err := h264.DecoderConfigurationRecord(sps, pps)
	if err != nil {
		return nil, err
	}
	return append(videoHeader(true, AVCPacketSequenceHeader), record...), nil
}

// VideoFrameBody builds an AVC NALU tag body from length-prefixed NAL units.
func VideoFrameBody(avcc []byte, key bool) []byte {
	body := make([]byte, 0, VideoTagHeaderSize+len(avcc))
	body = append(body, videoHeader(key, AVCPacketNALU)...)
	return append(body, avcc...)
}

// AudioConfigBody builds an AAC sequence header tag body.
func AudioConfigBody(asc []byte) []byte {
	body := make([]byte, 0, AudioTagHeaderSize+len(asc))
	body = append(body, SoundHeaderAAC, AACPacketSequenceHeader)
	return append(body, asc...)
}

// AudioFrameBody builds an AAC raw tag body.
func AudioFrameBody(raw []byte) []byte {
	body := make([]byte, 0, AudioTagHeaderSize+len(raw))
	body = append(body, SoundHeaderAAC, AACPacketRaw)
	return append(body, raw...)
}

// IsKeyFrameBody reports whether a video tag body carries a key frame.
func IsKeyFrameBody(body []byte) bool {
	return len(body) > 0 && body[0]>>4 == FrameTypeKey
}
