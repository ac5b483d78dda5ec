// Package worker drives one media stream from its encoder source through
// synchronization and packaging into a sink.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/babelcloud/pushscreen/internal/capture/core"
	"github.com/babelcloud/pushscreen/internal/util"
)

// DefaultPollTimeout bounds how long a worker waits on its source before
// re-checking the quit flag, and so bounds cancellation latency.
const DefaultPollTimeout = 20 * time.Millisecond

// State is the lifecycle state of a Worker.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted // source reached end of stream
	StateQuit      // stopped by Quit or context cancellation
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateQuit:
		return "quit"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Clock maps raw encoder timestamps to relative ones.
type Clock interface {
	Sync(kind core.StreamKind, rawUs int64) time.Duration
}

// Config holds the collaborators of a Worker.
type Config struct {
	Source      core.Source
	Clock       Clock
	Packager    core.Packager
	Sink        core.Sink
	PollTimeout time.Duration

	// KeepSource leaves the source running when Run returns. Its owner
	// stops it.
	KeepSource bool
}

// Stats are the counters of one worker.
type Stats struct {
	Units         int64
	Tags          int64
	FormatChanges int64
	LastTimestamp time.Duration
}

// Worker runs the encode loop of one stream.
type Worker struct {
	kind   core.StreamKind
	cfg    Config
	logger *slog.Logger

	quit    atomic.Bool
	state   atomic.Int32
	started atomic.Bool
	done    chan struct{}

	units         atomic.Int64
	tags          atomic.Int64
	formatChanges atomic.Int64
	lastTimestamp atomic.Int64
}

// New creates a worker for the stream kind of cfg.Source.
func New(cfg Config) *Worker {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	kind := cfg.Source.Kind()
	return &Worker{
		kind:   kind,
		cfg:    cfg,
		logger: util.GetLogger().With("component", "encode_worker", "stream", kind.String()),
		done:   make(chan struct{}),
	}
}

// Kind returns the stream kind the worker drives.
func (w *Worker) Kind() core.StreamKind {
	return w.kind
}

// Quit asks the loop to exit before its next poll. The unit in flight is
// always delivered first.
func (w *Worker) Quit() {
	w.quit.Store(true)
}

// State returns the current state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Stats returns a snapshot of the counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Units:         w.units.Load(),
		Tags:          w.tags.Load(),
		FormatChanges: w.formatChanges.Load(),
		LastTimestamp: time.Duration(w.lastTimestamp.Load()),
	}
}

// Run starts the source and loops until Quit, context cancellation, end of
// stream or a source or sink failure. It may be called once.
func (w *Worker) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%s worker already started", w.kind)
	}
	defer close(w.done)

	if w.quit.Load() {
		w.setState(StateQuit)
		return nil
	}

	w.setState(StateRunning)
	if err := w.cfg.Source.Start(ctx); err != nil {
		w.setState(StateFailed)
		return fmt.Errorf("failed to start %s source: %w", w.kind, err)
	}
	defer func() {
		if !w.cfg.KeepSource {
			if stopErr := w.cfg.Source.Stop(); stopErr != nil {
				w.logger.Warn("Failed to stop source", "error", stopErr)
			}
		}
		stats := w.Stats()
		w.logger.Info("Encode worker stopped",
			"state", w.State().String(),
			"units", stats.Units,
			"tags", stats.Tags,
			"format_changes", stats.FormatChanges,
			"last_ts", stats.LastTimestamp)
	}()

	w.logger.Info("Encode worker started", "poll_timeout", w.cfg.PollTimeout)

	for {
		if w.quit.Load() || ctx.Err() != nil {
			w.setState(StateQuit)
			return nil
		}

		ev, err := w.cfg.Source.Poll(w.cfg.PollTimeout)
		if err != nil {
			switch {
			case errors.Is(err, core.ErrNotReady):
				continue
			case errors.Is(err, core.ErrEndOfStream):
				w.complete()
				return nil
			}
			w.setState(StateFailed)
			w.logger.Error("Source failed", "error", err)
			return fmt.Errorf("%s source failed: %w", w.kind, err)
		}

		switch ev.Type {
		case core.EventWouldBlock:
			continue

		case core.EventFormatChanged:
			if err := w.handleFormat(ev.Format); err != nil {
				w.setState(StateFailed)
				return err
			}

		case core.EventUnit:
			err := w.handleUnit(ev.Unit)
			if errors.Is(err, core.ErrEndOfStream) {
				w.complete()
				return nil
			}
			if err != nil {
				w.setState(StateFailed)
				return err
			}

		case core.EventEndOfStream:
			w.complete()
			return nil
		}
	}
}

func (w *Worker) handleFormat(format core.Format) error {
	w.formatChanges.Add(1)
	w.logger.Info("Output format changed", "format", format.String())

	if err := w.cfg.Sink.AddTrack(w.kind, format); err != nil {
		return fmt.Errorf("failed to add %s track: %w", w.kind, err)
	}

	tags, err := w.cfg.Packager.Configure(w.kind, format)
	if err != nil {
		return fmt.Errorf("failed to configure %s packager: %w", w.kind, err)
	}
	return w.collect(tags)
}

func (w *Worker) handleUnit(unit core.AccessUnit) error {
	if unit.IsConfig {
		w.logger.Debug("Skipping codec config unit", "size", len(unit.Payload))
		return nil
	}

	var ts time.Duration
	if len(unit.Payload) > 0 {
		w.units.Add(1)
		ts = w.cfg.Clock.Sync(w.kind, unit.RawTimestamp)
		w.lastTimestamp.Store(int64(ts))
	}

	tags, err := w.cfg.Packager.Package(w.kind, ts, unit)
	if err != nil {
		if errors.Is(err, core.ErrEndOfStream) {
			return err
		}
		return fmt.Errorf("failed to package %s unit: %w", w.kind, err)
	}
	return w.collect(tags)
}

func (w *Worker) collect(tags []core.WireTag) error {
	for _, tag := range tags {
		if err := w.cfg.Sink.Collect(tag); err != nil {
			return fmt.Errorf("failed to collect %s tag: %w", tag.Kind, err)
		}
		w.tags.Add(1)
	}
	return nil
}

func (w *Worker) complete() {
	w.setState(StateCompleted)
	w.logger.Info("End of stream reached")
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}
