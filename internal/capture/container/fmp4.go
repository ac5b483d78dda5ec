package container

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/pkg/errors"

	"github.com/babelcloud/pushscreen/internal/capture/aac"
	"github.com/babelcloud/pushscreen/internal/capture/core"
	"github.com/babelcloud/pushscreen/internal/util"
)

const (
	videoTimeScale = 90000

	// FragmentDuration is the longest span of one moof/mdat fragment.
	FragmentDuration = time.Second
)

// scaleToTimescale converts a duration into track timescale units.
func scaleToTimescale(d time.Duration, timeScale uint32) int64 {
	if d <= 0 {
		return 0
	}
	return d.Microseconds() * int64(timeScale) / 1_000_000
}

type fmp4Track struct {
	id          int
	kind        core.StreamKind
	timeScale   uint32
	defaultDur  uint32
	lastDur     uint32
	pending     *fmp4.Sample
	pendingDTS  int64
	baseTime    int64
	nextBase    int64
	samples     []*fmp4.Sample
	sampleCount int
}

// FMP4Writer writes fragmented MP4. A sample is held until the next one of
// its track arrives so its duration is known; fragments are cut on video
// key frames or after FragmentDuration.
type FMP4Writer struct {
	open   Opener
	logger *slog.Logger

	set     trackSet
	tracks  []*fmp4Track
	out     io.WriteCloser
	started bool
	closed  bool

	sequenceNumber uint32
	fragmentStart  time.Duration
	fragmentOpen   bool
}

var _ Writer = (*FMP4Writer)(nil)

// NewFMP4Writer creates a writer that opens its destination on Start.
func NewFMP4Writer(open Opener) *FMP4Writer {
	return &FMP4Writer{
		open:           open,
		logger:         util.GetLogger().With("component", "fmp4_writer"),
		sequenceNumber: 1,
	}
}

// AddTrack implements Writer.
func (w *FMP4Writer) AddTrack(format core.Format) (int, error) {
	if w.started {
		return 0, fmt.Errorf("writer already started")
	}
	return w.set.add(format)
}

// Start implements Writer. It writes the ftyp and moov boxes.
func (w *FMP4Writer) Start() error {
	if w.started {
		return nil
	}
	if len(w.set.formats) == 0 {
		return fmt.Errorf("no tracks registered")
	}

	init := &fmp4.Init{}
	for i, format := range w.set.formats {
		track := &fmp4Track{id: i + 1, kind: format.Kind}

		var codec mp4.Codec
		if format.Kind == core.Video {
			track.timeScale = videoTimeScale
			track.defaultDur = videoTimeScale / 30
			codec = &mp4.CodecH264{SPS: format.Video.SPS, PPS: format.Video.PPS}
		} else {
			asc, err := aac.AudioSpecificConfig(format.Audio)
			if err != nil {
				return err
			}
			track.timeScale = uint32(format.Audio.SampleRate)
			track.defaultDur = aac.SamplesPerFrame
			codec = &mp4.CodecMPEG4Audio{Config: asc}
		}

		w.tracks = append(w.tracks, track)
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        track.id,
			TimeScale: track.timeScale,
			Codec:     codec,
		})
	}

	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return errors.Wrap(err, "failed to marshal init segment")
	}

	out, err := w.open()
	if err != nil {
		return err
	}
	if _, err := out.Write(buf.Bytes()); err != nil {
		out.Close()
		return errors.Wrap(err, "failed to write init segment")
	}

	w.out = out
	w.started = true
	w.logger.Info("fMP4 init segment written", "tracks", len(w.tracks), "size", len(buf.Bytes()))
	return nil
}

// WriteSample implements Writer.
func (w *FMP4Writer) WriteSample(track int, payload []byte, info SampleInfo) error {
	if !w.started || w.closed {
		return fmt.Errorf("writer not writable")
	}
	if err := w.set.check(track); err != nil {
		return err
	}
	t := w.tracks[track]

	dts := scaleToTimescale(info.DTS, t.timeScale)
	if t.pending != nil {
		w.commit(t, dts)
	}

	if t.kind == core.Video && info.KeyFrame && w.fragmentOpen {
		if err := w.flush(); err != nil {
			return err
		}
	}
	if !w.fragmentOpen {
		w.fragmentOpen = true
		w.fragmentStart = info.DTS
	}

	t.pending = &fmp4.Sample{
		IsNonSyncSample: t.kind == core.Video && !info.KeyFrame,
		Payload:         payload,
	}
	t.pendingDTS = dts

	if info.DTS-w.fragmentStart >= FragmentDuration {
		return w.flush()
	}
	return nil
}

// commit moves the pending sample of t into the open fragment once the
// next DTS is known.
func (w *FMP4Writer) commit(t *fmp4Track, nextDTS int64) {
	var dur uint32
	if d := nextDTS - t.pendingDTS; d > 0 {
		dur = uint32(d)
	} else if t.lastDur > 0 {
		dur = t.lastDur
	} else {
		dur = t.defaultDur
	}
	t.lastDur = dur
	t.pending.Duration = dur

	if len(t.samples) == 0 {
		t.baseTime = max(t.pendingDTS, t.nextBase)
		t.nextBase = t.baseTime
	}
	t.samples = append(t.samples, t.pending)
	t.nextBase += int64(dur)
	t.pending = nil
}

// flush writes the committed samples of every track as one fragment.
func (w *FMP4Writer) flush() error {
	w.fragmentOpen = false

	part := &fmp4.Part{SequenceNumber: w.sequenceNumber}
	for _, t := range w.tracks {
		if len(t.samples) == 0 {
			continue
		}
		part.Tracks = append(part.Tracks, &fmp4.PartTrack{
			ID:       t.id,
			BaseTime: uint64(t.baseTime),
			Samples:  t.samples,
		})
	}
	if len(part.Tracks) == 0 {
		return nil
	}

	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return errors.Wrap(err, "failed to marshal fragment")
	}
	if _, err := w.out.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write fragment")
	}

	for _, t := range part.Tracks {
		w.tracks[t.ID-1].sampleCount += len(t.Samples)
		w.tracks[t.ID-1].samples = nil
	}
	w.sequenceNumber++
	w.logger.Debug("Fragment written", "sequence", part.SequenceNumber, "size", len(buf.Bytes()))
	return nil
}

// Finalize implements Writer.
func (w *FMP4Writer) Finalize() error {
	if !w.started || w.closed {
		return nil
	}
	w.closed = true

	for _, t := range w.tracks {
		if t.pending != nil {
			w.commit(t, t.pendingDTS)
		}
	}
	flushErr := w.flush()
	closeErr := w.out.Close()

	for _, t := range w.tracks {
		w.logger.Info("fMP4 track finalized", "stream", t.kind.String(), "samples", t.sampleCount)
	}
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return errors.Wrap(closeErr, "failed to close output")
	}
	return nil
}
