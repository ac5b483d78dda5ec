package aac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/pushscreen/internal/capture/core"
)

// adtsFrame builds an AAC-LC 44.1kHz stereo ADTS frame without CRC.
func adtsFrame(payload []byte) []byte {
	l := 7 + len(payload)
	h := []byte{
		0xFF, 0xF1,
		0x50, // profile 1 (LC), sr index 4, private 0, channel bit 0
		0x80 | byte(l>>11),
		byte(l >> 3),
		byte(l<<5) | 0x1F,
		0xFC,
	}
	return append(h, payload...)
}

// adtsFrameCRC builds the same frame with a CRC protected header.
func adtsFrameCRC(payload []byte) []byte {
	l := 9 + len(payload)
	h := []byte{
		0xFF, 0xF0,
		0x50,
		0x80 | byte(l>>11),
		byte(l >> 3),
		byte(l<<5) | 0x1F,
		0xFC,
		0xAB, 0xCD, // crc
	}
	return append(h, payload...)
}

func TestParseADTS(t *testing.T) {
	frame := adtsFrame([]byte{1, 2, 3, 4})
	require.True(t, HasADTS(frame))

	h, err := ParseADTS(frame)
	require.NoError(t, err)
	assert.Equal(t, ObjectTypeLC, h.ObjectType)
	assert.Equal(t, 44100, h.SampleRate)
	assert.Equal(t, 2, h.ChannelCount)
	assert.Equal(t, 11, h.FrameLength)
	assert.Equal(t, 7, h.HeaderLength)
}

func TestParseADTSWithCRC(t *testing.T) {
	payload := []byte{0x21, 0x10, 0x05}
	frame := adtsFrameCRC(payload)
	require.True(t, HasADTS(frame))

	h, err := ParseADTS(frame)
	require.NoError(t, err)
	assert.Equal(t, ObjectTypeLC, h.ObjectType)
	assert.Equal(t, 44100, h.SampleRate)
	assert.Equal(t, 2, h.ChannelCount)
	assert.Equal(t, 12, h.FrameLength)
	assert.Equal(t, 9, h.HeaderLength)
	assert.Equal(t, payload, StripADTS(frame))
}

func TestParseADTSErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte{0xFF, 0xF1}},
		{"bad sync", []byte{0xFF, 0x01, 0x50, 0x80, 0x01, 0x7F, 0xFC}},
		{"bad sample rate", []byte{0xFF, 0xF1, 0x7C, 0x80, 0x01, 0x7F, 0xFC, 0x00}},
		{"truncated frame", adtsFrame([]byte{1, 2, 3, 4})[:9]},
		{"crc header too short", adtsFrameCRC(nil)[:8]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseADTS(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestStripADTS(t *testing.T) {
	payload := []byte{0x21, 0x10, 0x05}
	assert.Equal(t, payload, StripADTS(adtsFrame(payload)))
	assert.Equal(t, payload, StripADTS(payload))
}

func TestFormatFromADTS(t *testing.T) {
	f, err := FormatFromADTS(adtsFrame([]byte{0}))
	require.NoError(t, err)
	require.NotNil(t, f.Audio)
	assert.Equal(t, core.Audio, f.Kind)
	assert.Equal(t, 44100, f.Audio.SampleRate)
	assert.Equal(t, []byte{0x12, 0x10}, f.Audio.Config)
}

func TestFormatFromConfig(t *testing.T) {
	f, err := FormatFromConfig([]byte{0x11, 0x90})
	require.NoError(t, err)
	assert.Equal(t, 48000, f.Audio.SampleRate)
	assert.Equal(t, 2, f.Audio.ChannelCount)
	assert.Equal(t, ObjectTypeLC, f.Audio.ObjectType)

	asc, err := AudioSpecificConfig(f.Audio)
	require.NoError(t, err)
	assert.Equal(t, 48000, asc.SampleRate)
}

func TestConfigBytes(t *testing.T) {
	cfg, err := ConfigBytes(&core.AudioFormat{SampleRate: 44100, ChannelCount: 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x10}, cfg)

	cfg, err = ConfigBytes(&core.AudioFormat{Config: []byte{0x11, 0x90}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x90}, cfg)
}
