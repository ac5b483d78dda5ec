package container

import (
	"bytes"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
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
	testPPS    = []byte{0x68, 0xcb, 0x83, 0xcb, 0x20}
	testIDR    = []byte{0, 0, 0, 5, 0x65, 0x88, 0x84, 0x00, 0x33}
	testPFrame = []byte{0, 0, 0, 4, 0x41, 0x9a, 0x02, 0x04}
	testAAC    = []byte{0x21, 0x10, 0x05, 0x00}
)

// memoryOutput is an in-memory destination.
type memoryOutput struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	opens  int
}

func (m *memoryOutput) opener() Opener {
	return func() (io.WriteCloser, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.opens++
		return m, nil
	}
}

func (m *memoryOutput) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Write(p)
}

func (m *memoryOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memoryOutput) bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.buf.Bytes()...)
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

func addTracks(t *testing.T, w Writer) (video, audio int) {
	t.Helper()
	video, err := w.AddTrack(videoFormat())
	require.NoError(t, err)
	audio, err = w.AddTrack(audioFormat())
	require.NoError(t, err)
	require.NotEqual(t, video, audio)
	return video, audio
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestFMP4Writer(t *testing.T) {
	out := &memoryOutput{}
	w := NewFMP4Writer(out.opener())
	video, audio := addTracks(t, w)

	require.NoError(t, w.Start())
	initSize := len(out.bytes())
	require.Greater(t, initSize, 0)

	var init fmp4.Init
	require.NoError(t, init.Unmarshal(bytes.NewReader(out.bytes())))
	require.Len(t, init.Tracks, 2)
	assert.Equal(t, uint32(90000), init.Tracks[0].TimeScale)
	assert.Equal(t, uint32(44100), init.Tracks[1].TimeScale)

	require.NoError(t, w.WriteSample(video, testIDR, SampleInfo{DTS: 0, KeyFrame: true}))
	require.NoError(t, w.WriteSample(audio, testAAC, SampleInfo{DTS: 0}))
	require.NoError(t, w.WriteSample(video, testPFrame, SampleInfo{DTS: ms(33)}))
	require.NoError(t, w.WriteSample(audio, testAAC, SampleInfo{DTS: ms(23)}))
	require.NoError(t, w.WriteSample(video, testIDR, SampleInfo{DTS: ms(1000), KeyFrame: true}))
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Finalize())
	assert.True(t, out.closed)

	var parts fmp4.Parts
	require.NoError(t, parts.Unmarshal(out.bytes()[initSize:]))
	require.Len(t, parts, 2)

	first := parts[0]
	require.Len(t, first.Tracks, 2)
	assert.Equal(t, 1, first.Tracks[0].ID)
	assert.Equal(t, uint64(0), first.Tracks[0].BaseTime)
	require.Len(t, first.Tracks[0].Samples, 2)
	assert.Equal(t, uint32(2970), first.Tracks[0].Samples[0].Duration)
	assert.False(t, first.Tracks[0].Samples[0].IsNonSyncSample)
	assert.True(t, first.Tracks[0].Samples[1].IsNonSyncSample)
	assert.Len(t, first.Tracks[1].Samples, 1)

	second := parts[1]
	assert.Equal(t, uint64(90000), second.Tracks[0].BaseTime)
	assert.Len(t, second.Tracks[0].Samples, 1)

	assert.Error(t, w.WriteSample(video, testIDR, SampleInfo{DTS: ms(2000)}))
}

func TestFMP4WriterNeverStarted(t *testing.T) {
	out := &memoryOutput{}
	w := NewFMP4Writer(out.opener())
	_, err := w.AddTrack(videoFormat())
	require.NoError(t, err)

	require.NoError(t, w.Finalize())
	assert.Equal(t, 0, out.opens)
}

func TestFMP4WriterTrackRules(t *testing.T) {
	out := &memoryOutput{}
	w := NewFMP4Writer(out.opener())

	assert.Error(t, w.Start())
	assert.Error(t, w.WriteSample(0, testAAC, SampleInfo{}))

	video, audio := addTracks(t, w)
	again, err := w.AddTrack(videoFormat())
	require.NoError(t, err)
	assert.Equal(t, video, again)

	_, err = w.AddTrack(core.Format{Kind: core.Audio})
	assert.Error(t, err)

	require.NoError(t, w.Start())
	_, err = w.AddTrack(audioFormat())
	assert.Error(t, err)
	assert.Error(t, w.WriteSample(audio+5, testAAC, SampleInfo{}))
	require.NoError(t, w.Finalize())
}

func TestWebMWriter(t *testing.T) {
	out := &memoryOutput{}
	w := NewWebMWriter(out.opener())
	video, audio := addTracks(t, w)

	require.NoError(t, w.Start())
	require.NoError(t, w.WriteSample(video, testIDR, SampleInfo{DTS: 0, KeyFrame: true}))
	require.NoError(t, w.WriteSample(audio, testAAC, SampleInfo{DTS: ms(5)}))
	require.NoError(t, w.WriteSample(video, testPFrame, SampleInfo{DTS: ms(33)}))
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Finalize())

	data := out.bytes()
	require.Greater(t, len(data), 4)
	assert.Equal(t, []byte{0x1A, 0x45, 0xDF, 0xA3}, data[:4])
	assert.True(t, bytes.Contains(data, []byte("V_MPEG4/ISO/AVC")))
	assert.True(t, bytes.Contains(data, []byte("A_AAC")))
	assert.True(t, out.closed)

	assert.Error(t, w.WriteSample(video, testIDR, SampleInfo{DTS: ms(66)}))
}

func TestNew(t *testing.T) {
	out := &memoryOutput{}

	w, err := New(FormatMP4, out.opener())
	require.NoError(t, err)
	assert.IsType(t, &FMP4Writer{}, w)

	w, err = New(FormatWebM, out.opener())
	require.NoError(t, err)
	assert.IsType(t, &WebMWriter{}, w)

	_, err = New("avi", out.opener())
	assert.Error(t, err)
}

func TestFileOpener(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.mp4")
	f, err := FileOpener(path)()
	require.NoError(t, err)
	_, err = f.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.FileExists(t, path)
}
