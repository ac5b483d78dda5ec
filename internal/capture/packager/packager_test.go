package packager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/pushscreen/internal/capture/core"
)

var (
	testSPS = []byte{
		0x67, 0x64, 0x00, 0x28, 0xac, 0xd9, 0x40, 0x78,
		0x02, 0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00,
		0x04, 0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60,
		0xc6, 0x58,
	}
	testPPS = []byte{0x68, 0xcb, 0x83, 0xcb, 0x20}
	testIDR = []byte{0x65, 0x88, 0x84, 0x00, 0x33}
	testP   = []byte{0x41, 0x9a, 0x02, 0x04}
)

func annexB(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, n...)
	}
	return out
}

func videoFormat() core.Format {
	return core.Format{Kind: core.Video, Video: &core.VideoFormat{
		Codec: "h264", Width: 1920, Height: 1080, SPS: testSPS, PPS: testPPS,
	}}
}

func audioFormat() core.Format {
	return core.Format{Kind: core.Audio, Audio: &core.AudioFormat{
		Codec: "aac", SampleRate: 44100, ChannelCount: 2, ObjectType: 2, Config: []byte{0x12, 0x10},
	}}
}

func videoUnit(ts int64, nalus ...[]byte) core.AccessUnit {
	return core.AccessUnit{Kind: core.Video, Payload: annexB(nalus...), RawTimestamp: ts}
}

func TestFLVVideoFrame(t *testing.T) {
	p := NewFLV(Options{})
	_, err := p.Configure(core.Video, videoFormat())
	require.NoError(t, err)

	tags, err := p.Package(core.Video, 40*time.Millisecond, videoUnit(0, testSPS, testPPS, testIDR))
	require.NoError(t, err)
	require.Len(t, tags, 1)

	tag := tags[0]
	assert.Equal(t, core.VideoFrame, tag.Kind)
	assert.True(t, tag.KeyFrame)
	assert.True(t, tag.Droppable)
	assert.Equal(t, uint32(40), tag.TimestampMs())

	want := []byte{0x17, 0x01, 0, 0, 0, 0, 0, 0, byte(len(testIDR))}
	want = append(want, testIDR...)
	assert.Equal(t, want, tag.Payload)

	tags, err = p.Package(core.Video, 80*time.Millisecond, videoUnit(0, testP))
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.False(t, tags[0].KeyFrame)
	assert.Equal(t, byte(0x27), tags[0].Payload[0])
}

func TestFLVVideoFrameWithoutStartCode(t *testing.T) {
	p := NewFLV(Options{})
	_, err := p.Configure(core.Video, videoFormat())
	require.NoError(t, err)

	tags, err := p.Package(core.Video, 0, core.AccessUnit{Kind: core.Video, Payload: testIDR})
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.True(t, tags[0].KeyFrame)
}

func TestFLVConfigTags(t *testing.T) {
	p := NewFLV(Options{})

	video, err := p.Configure(core.Video, videoFormat())
	require.NoError(t, err)
	require.Len(t, video, 1)
	assert.Equal(t, core.VideoConfig, video[0].Kind)
	assert.False(t, video[0].Droppable)
	assert.Equal(t, byte(0x17), video[0].Payload[0])
	assert.Equal(t, byte(0x00), video[0].Payload[1])

	audio, err := p.Configure(core.Audio, audioFormat())
	require.NoError(t, err)
	require.Len(t, audio, 1)
	assert.Equal(t, []byte{0xAF, 0x00, 0x12, 0x10}, audio[0].Payload)
}

func TestFLVAudioFrameStripsADTS(t *testing.T) {
	p := NewFLV(Options{})
	_, err := p.Configure(core.Audio, audioFormat())
	require.NoError(t, err)

	adts := []byte{0xFF, 0xF1, 0x50, 0x80, 0x01, 0x5F, 0xFC, 0x21, 0x10, 0x05}
	tags, err := p.Package(core.Audio, 23*time.Millisecond, core.AccessUnit{Kind: core.Audio, Payload: adts})
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, core.AudioFrame, tags[0].Kind)
	assert.Equal(t, []byte{0xAF, 0x01, 0x21, 0x10, 0x05}, tags[0].Payload)
	assert.True(t, tags[0].Droppable)
}

func TestFormatChangesEmitConfigBeforeNextFrame(t *testing.T) {
	p := NewFLV(Options{})

	var out []core.WireTag
	const changes = 3
	for i := 0; i < changes; i++ {
		tags, err := p.Configure(core.Video, videoFormat())
		require.NoError(t, err)
		out = append(out, tags...)

		for j := 0; j < 2; j++ {
			ts := time.Duration(i*100+j) * time.Millisecond
			tags, err := p.Package(core.Video, ts, videoUnit(0, testIDR))
			require.NoError(t, err)
			out = append(out, tags...)
		}
	}

	configs := 0
	for i, tag := range out {
		if !tag.IsConfig() {
			continue
		}
		configs++
		assert.False(t, tag.Droppable)
		assert.Equal(t, time.Duration(0), tag.Timestamp)
		require.Less(t, i+1, len(out))
		assert.Equal(t, core.VideoFrame, out[i+1].Kind)
	}
	assert.Equal(t, changes, configs)

	cfg, frames, _ := p.Stats()
	assert.Equal(t, int64(changes), cfg)
	assert.Equal(t, int64(changes*2), frames)
}

func TestFramesBeforeFormatAreHeld(t *testing.T) {
	p := NewFLV(Options{})

	for i := 0; i < 3; i++ {
		tags, err := p.Package(core.Video, time.Duration(i)*33*time.Millisecond, videoUnit(0, testIDR))
		require.NoError(t, err)
		assert.Empty(t, tags)
	}

	tags, err := p.Configure(core.Video, videoFormat())
	require.NoError(t, err)
	require.Len(t, tags, 4)
	assert.Equal(t, core.VideoConfig, tags[0].Kind)
	for i, tag := range tags[1:] {
		assert.Equal(t, core.VideoFrame, tag.Kind)
		assert.Equal(t, uint32(i*33), tag.TimestampMs())
	}

	format, ok := p.Format(core.Video)
	assert.True(t, ok)
	assert.Equal(t, 1920, format.Video.Width)
}

func TestPendingLimitDropsOldest(t *testing.T) {
	p := NewFLV(Options{PendingLimit: 2})

	for i := 0; i < 5; i++ {
		_, err := p.Package(core.Audio, time.Duration(i)*time.Second, core.AccessUnit{Kind: core.Audio, Payload: []byte{byte(i)}})
		require.NoError(t, err)
	}

	tags, err := p.Configure(core.Audio, audioFormat())
	require.NoError(t, err)
	require.Len(t, tags, 3)
	assert.Equal(t, 3*time.Second, tags[1].Timestamp)
	assert.Equal(t, 4*time.Second, tags[2].Timestamp)

	_, _, dropped := p.Stats()
	assert.Equal(t, int64(3), dropped)
}

func TestEmptyPayloadIsEndOfStream(t *testing.T) {
	p := NewFLV(Options{})
	_, err := p.Package(core.Audio, 0, core.AccessUnit{Kind: core.Audio})
	assert.ErrorIs(t, err, core.ErrEndOfStream)
}

func TestConfigUnitsAreNotFrames(t *testing.T) {
	p := NewFLV(Options{})
	_, err := p.Configure(core.Video, videoFormat())
	require.NoError(t, err)

	unit := videoUnit(0, testSPS, testPPS)
	unit.IsConfig = true
	tags, err := p.Package(core.Video, 0, unit)
	require.NoError(t, err)
	assert.Empty(t, tags)

	tags, err = p.Package(core.Video, 0, videoUnit(0, testSPS, testPPS))
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestConfigureRejectsBadFormat(t *testing.T) {
	p := NewFLV(Options{})

	_, err := p.Configure(core.Audio, videoFormat())
	assert.Error(t, err)

	_, err = p.Configure(core.Video, core.Format{Kind: core.Video})
	assert.Error(t, err)

	_, err = p.Configure(core.Video, core.Format{Kind: core.Video, Video: &core.VideoFormat{SPS: []byte{0x67}, PPS: testPPS}})
	assert.Error(t, err)
}

func TestSampleFraming(t *testing.T) {
	p := NewSample(Options{})

	cfg, err := p.Configure(core.Video, videoFormat())
	require.NoError(t, err)
	require.Len(t, cfg, 1)
	assert.Equal(t, byte(0x01), cfg[0].Payload[0])

	tags, err := p.Package(core.Video, 0, videoUnit(0, testIDR))
	require.NoError(t, err)
	require.Len(t, tags, 1)
	want := append([]byte{0, 0, 0, byte(len(testIDR))}, testIDR...)
	assert.Equal(t, want, tags[0].Payload)
	assert.True(t, tags[0].KeyFrame)

	acfg, err := p.Configure(core.Audio, audioFormat())
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x10}, acfg[0].Payload)

	tags, err = p.Package(core.Audio, 0, core.AccessUnit{Kind: core.Audio, Payload: []byte{0x21, 0x10}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x21, 0x10}, tags[0].Payload)
}

func TestVideoKeyFrameDetection(t *testing.T) {
	sei := []byte{0x06, 0x05, 0x01, 0x00, 0x80}

	tests := []struct {
		name      string
		unit      core.AccessUnit
		key       bool
		firstByte byte
	}{
		{
			name:      "sei before idr",
			unit:      videoUnit(0, sei, testIDR),
			key:       true,
			firstByte: 0x17,
		},
		{
			name:      "sei before p slice",
			unit:      videoUnit(0, sei, testP),
			key:       false,
			firstByte: 0x27,
		},
		{
			name:      "flagged by the source",
			unit:      core.AccessUnit{Kind: core.Video, Payload: annexB(sei, testP), IsKeyFrame: true},
			key:       true,
			firstByte: 0x17,
		},
	}

	framings := map[string]func(Options) *Packager{"flv": NewFLV, "sample": NewSample}
	for framing, newPackager := range framings {
		for _, tt := range tests {
			t.Run(framing+"/"+tt.name, func(t *testing.T) {
				p := newPackager(Options{})
				_, err := p.Configure(core.Video, videoFormat())
				require.NoError(t, err)

				tags, err := p.Package(core.Video, 0, tt.unit)
				require.NoError(t, err)
				require.Len(t, tags, 1)
				assert.Equal(t, tt.key, tags[0].KeyFrame)
				if framing == "flv" {
					assert.Equal(t, tt.firstByte, tags[0].Payload[0])
				}
			})
		}
	}
}
