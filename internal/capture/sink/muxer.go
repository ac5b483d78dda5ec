package sink

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/babelcloud/pushscreen/internal/capture/container"
	"github.com/babelcloud/pushscreen/internal/capture/core"
	"github.com/babelcloud/pushscreen/internal/util"
)

// MuxState is the state of a Muxer.
type MuxState int

const (
	NoTracks MuxState = iota
	OneTrack
	Started
	Stopped
)

func (s MuxState) String() string {
	switch s {
	case NoTracks:
		return "no-tracks"
	case OneTrack:
		return "one-track"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type muxTrack struct {
	present bool
	index   int
	format  core.Format
}

// Muxer writes both streams into one container. The container is started
// only once an audio and a video track are registered; samples arriving
// before that or after Stop are dropped. Track registration and sample
// writes share one lock.
type Muxer struct {
	writer container.Writer
	logger *slog.Logger

	mu         sync.Mutex
	state      MuxState
	opened     bool
	tracks     [2]muxTrack
	waitingKey bool
	written    [2]int64
	rejected   int64
}

var _ core.Sink = (*Muxer)(nil)

// NewMuxer creates a muxer writing to w.
func NewMuxer(w container.Writer) *Muxer {
	return &Muxer{
		writer: w,
		logger: util.GetLogger().With("component", "muxer"),
	}
}

// AddTrack implements core.Sink. It is a no-op once the muxer started.
func (m *Muxer) AddTrack(kind core.StreamKind, format core.Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Started || m.state == Stopped {
		m.logger.Debug("Ignoring track after start", "stream", kind.String(), "state", m.state.String())
		return nil
	}
	if format.Kind != kind {
		return fmt.Errorf("format for %s reported on %s stream", format.Kind, kind)
	}

	index, err := m.writer.AddTrack(format)
	if err != nil {
		return fmt.Errorf("failed to add %s track: %w", kind, err)
	}
	m.tracks[trackSlot(kind)] = muxTrack{present: true, index: index, format: format}
	m.logger.Info("Track added", "stream", kind.String(), "index", index, "format", format.String())

	if !m.tracks[0].present || !m.tracks[1].present {
		m.state = OneTrack
		return nil
	}

	if err := m.writer.Start(); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	m.state = Started
	m.opened = true
	m.waitingKey = true
	m.logger.Info("Muxer started")
	return nil
}

// WriteSample appends one sample. It is a no-op unless the muxer is
// started. Video samples are skipped until the first key frame.
func (m *Muxer) WriteSample(kind core.StreamKind, payload []byte, info container.SampleInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Started {
		m.rejected++
		return nil
	}
	if kind == core.Video && m.waitingKey {
		if !info.KeyFrame {
			m.rejected++
			return nil
		}
		m.waitingKey = false
	}

	t := m.tracks[trackSlot(kind)]
	if err := m.writer.WriteSample(t.index, payload, info); err != nil {
		return fmt.Errorf("failed to write %s sample: %w", kind, err)
	}
	m.written[trackSlot(kind)]++
	return nil
}

// Collect implements core.Sink. Config tags are ignored since the formats
// were registered through AddTrack.
func (m *Muxer) Collect(tag core.WireTag) error {
	if tag.IsConfig() {
		return nil
	}
	return m.WriteSample(tag.Stream(), tag.Payload, container.SampleInfo{
		DTS:      tag.Timestamp,
		KeyFrame: tag.KeyFrame,
	})
}

// Stop implements core.Sink. It finalizes the container once.
func (m *Muxer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Stopped {
		return nil
	}
	prev := m.state
	m.state = Stopped

	err := m.writer.Finalize()
	m.logger.Info("Muxer stopped",
		"previous_state", prev.String(),
		"audio_samples", m.written[trackSlot(core.Audio)],
		"video_samples", m.written[trackSlot(core.Video)],
		"rejected", m.rejected)
	if err != nil {
		return fmt.Errorf("failed to finalize container: %w", err)
	}
	return nil
}

// State returns the current state.
func (m *Muxer) State() MuxState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Opened reports whether the container was ever started.
func (m *Muxer) Opened() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// TrackIndex returns the container index assigned to a stream.
func (m *Muxer) TrackIndex(kind core.StreamKind) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tracks[trackSlot(kind)]
	return t.index, t.present
}

func trackSlot(kind core.StreamKind) int {
	if kind == core.Video {
		return 1
	}
	return 0
}
