package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWireTagStream(t *testing.T) {
	tests := []struct {
		kind     TagKind
		stream   StreamKind
		isConfig bool
	}{
		{AudioConfig, Audio, true},
		{AudioFrame, Audio, false},
		{VideoConfig, Video, true},
		{VideoFrame, Video, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			tag := WireTag{Kind: tt.kind}
			assert.Equal(t, tt.stream, tag.Stream())
			assert.Equal(t, tt.isConfig, tag.IsConfig())
		})
	}
}

func TestWireTagTimestampMs(t *testing.T) {
	assert.Equal(t, uint32(0), WireTag{Timestamp: -time.Millisecond}.TimestampMs())
	assert.Equal(t, uint32(0), WireTag{Timestamp: 999 * time.Microsecond}.TimestampMs())
	assert.Equal(t, uint32(1), WireTag{Timestamp: 1023 * time.Microsecond}.TimestampMs())
	assert.Equal(t, uint32(90000), WireTag{Timestamp: 90 * time.Second}.TimestampMs())
}

func TestFormatString(t *testing.T) {
	v := Format{Kind: Video, Video: &VideoFormat{Codec: "h264", Width: 720, Height: 1280}}
	a := Format{Kind: Audio, Audio: &AudioFormat{Codec: "aac", SampleRate: 44100, ChannelCount: 1}}

	assert.Equal(t, "h264 720x1280", v.String())
	assert.Equal(t, "aac 44100Hz 1ch", a.String())
	assert.Equal(t, "unknown", Format{}.String())
	assert.Equal(t, "video", Video.String())
}
