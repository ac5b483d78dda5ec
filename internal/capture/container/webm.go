package container

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
	"github.com/pkg/errors"

	"github.com/babelcloud/pushscreen/internal/capture/aac"
	"github.com/babelcloud/pushscreen/internal/capture/core"
	"github.com/babelcloud/pushscreen/internal/capture/h264"
	"github.com/babelcloud/pushscreen/internal/util"
)

// Matroska track types
const (
	trackTypeVideo = 1
	trackTypeAudio = 2
)

// closeTimeout bounds the wait for the block writers to release the
// destination after their tracks are closed.
const closeTimeout = 5 * time.Second

// writerCloser closes the destination once and reports when that happened.
type writerCloser struct {
	w      io.WriteCloser
	logger *slog.Logger
	once   sync.Once
	err    error
	done   chan struct{}
}

func newWriterCloser(w io.WriteCloser, logger *slog.Logger) *writerCloser {
	return &writerCloser{w: w, logger: logger, done: make(chan struct{})}
}

func (wc *writerCloser) Write(p []byte) (int, error) {
	n, err := wc.w.Write(p)
	if err != nil {
		wc.logger.Warn("Write error detected", "error", err, "data_size", len(p), "bytes_written", n)
	}
	return n, err
}

func (wc *writerCloser) Close() error {
	wc.once.Do(func() {
		wc.err = wc.w.Close()
		close(wc.done)
	})
	return wc.err
}

// WebMWriter writes a Matroska/WebM file with H.264 and AAC tracks using
// millisecond block timestamps.
type WebMWriter struct {
	open   Opener
	logger *slog.Logger

	set     trackSet
	out     *writerCloser
	writers []webm.BlockWriteCloser
	started bool
	closed  bool
	samples []int

	fatalMu  sync.Mutex
	fatalErr error
}

var _ Writer = (*WebMWriter)(nil)

// NewWebMWriter creates a writer that opens its destination on Start.
func NewWebMWriter(open Opener) *WebMWriter {
	return &WebMWriter{
		open:   open,
		logger: util.GetLogger().With("component", "webm_writer"),
	}
}

// AddTrack implements Writer.
func (w *WebMWriter) AddTrack(format core.Format) (int, error) {
	if w.started {
		return 0, fmt.Errorf("writer already started")
	}
	return w.set.add(format)
}

func trackEntry(number int, format core.Format) (webm.TrackEntry, error) {
	entry := webm.TrackEntry{
		TrackNumber: uint64(number),
		TrackUID:    uint64(number),
	}

	if format.Kind == core.Video {
		record, err := h264.DecoderConfigurationRecord(format.Video.SPS, format.Video.PPS)
		if err != nil {
			return entry, err
		}
		entry.Name = "Video"
		entry.CodecID = "V_MPEG4/ISO/AVC"
		entry.CodecPrivate = record
		entry.TrackType = trackTypeVideo
		entry.Video = &webm.Video{
			PixelWidth:  uint64(format.Video.Width),
			PixelHeight: uint64(format.Video.Height),
		}
		return entry, nil
	}

	asc, err := aac.ConfigBytes(format.Audio)
	if err != nil {
		return entry, err
	}
	entry.Name = "Audio"
	entry.CodecID = "A_AAC"
	entry.CodecPrivate = asc
	entry.TrackType = trackTypeAudio
	if format.Audio.SampleRate > 0 {
		entry.DefaultDuration = uint64(aac.SamplesPerFrame * 1_000_000_000 / format.Audio.SampleRate)
	}
	entry.Audio = &webm.Audio{
		SamplingFrequency: float64(format.Audio.SampleRate),
		Channels:          uint64(format.Audio.ChannelCount),
	}
	return entry, nil
}

// Start implements Writer. It writes the EBML header and track list.
func (w *WebMWriter) Start() error {
	if w.started {
		return nil
	}
	if len(w.set.formats) == 0 {
		return fmt.Errorf("no tracks registered")
	}

	entries := make([]webm.TrackEntry, 0, len(w.set.formats))
	for i, format := range w.set.formats {
		entry, err := trackEntry(i+1, format)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}

	dst, err := w.open()
	if err != nil {
		return err
	}
	w.out = newWriterCloser(dst, w.logger)

	writers, err := webm.NewSimpleBlockWriter(w.out, entries,
		mkvcore.WithOnFatalHandler(func(err error) {
			w.logger.Error("WebM writer failed", "error", err)
			w.fatalMu.Lock()
			if w.fatalErr == nil {
				w.fatalErr = err
			}
			w.fatalMu.Unlock()
		}))
	if err != nil {
		w.out.Close()
		return errors.Wrap(err, "failed to create webm writer")
	}

	w.writers = writers
	w.samples = make([]int, len(writers))
	w.started = true
	w.logger.Info("WebM header written", "tracks", len(writers))
	return nil
}

// WriteSample implements Writer.
func (w *WebMWriter) WriteSample(track int, payload []byte, info SampleInfo) error {
	if !w.started || w.closed {
		return fmt.Errorf("writer not writable")
	}
	if err := w.set.check(track); err != nil {
		return err
	}
	if err := w.fatal(); err != nil {
		return err
	}

	key := info.KeyFrame || w.set.formats[track].Kind == core.Audio
	if _, err := w.writers[track].Write(key, info.DTS.Milliseconds(), payload); err != nil {
		return errors.Wrapf(err, "failed to write %s block", w.set.formats[track].Kind)
	}
	w.samples[track]++
	return nil
}

// Finalize implements Writer.
func (w *WebMWriter) Finalize() error {
	if !w.started || w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	for i, bw := range w.writers {
		if err := bw.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "failed to close webm track")
		}
		w.logger.Info("WebM track finalized", "stream", w.set.formats[i].Kind.String(), "samples", w.samples[i])
	}
	// The block writers close the destination after their last track.
	select {
	case <-w.out.done:
	case <-time.After(closeTimeout):
		w.logger.Warn("WebM writer did not release output, closing it")
	}
	if err := w.out.Close(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "failed to close output")
	}
	if firstErr == nil {
		firstErr = w.fatal()
	}
	return firstErr
}

func (w *WebMWriter) fatal() error {
	w.fatalMu.Lock()
	defer w.fatalMu.Unlock()
	return w.fatalErr
}
