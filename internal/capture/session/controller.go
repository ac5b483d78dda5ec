// Package session runs one capture session: an encode worker per stream
// feeding a shared sink, with a single teardown path for every way the
// session can end.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/babelcloud/pushscreen/internal/capture/core"
	"github.com/babelcloud/pushscreen/internal/capture/worker"
	"github.com/babelcloud/pushscreen/internal/util"
)

// Stop reasons logged at teardown.
const (
	ReasonStopped         = "stop requested"
	ReasonWorkersFinished = "all streams ended"
	ReasonWorkerFailed    = "worker failed"
	ReasonCanceled        = "context canceled"
)

// Config holds the collaborators of a session.
type Config struct {
	Sources     []core.Source // At most one per stream kind
	Clock       worker.Clock
	Packager    core.Packager
	Sink        core.Sink
	PollTimeout time.Duration

	// Resources are closed after the sink and the sources, in reverse
	// order.
	Resources []io.Closer
}

// Controller owns the workers and the sink of one session.
type Controller struct {
	id      string
	cfg     Config
	logger  *slog.Logger
	workers []*worker.Worker

	started     atomic.Bool
	stopReq     chan string
	workersDone chan struct{}
	groupErr    error

	stopOnce sync.Once
	done     chan struct{}
	reason   string
	err      error
}

// New validates cfg and creates the workers.
func New(cfg Config) (*Controller, error) {
	if len(cfg.Sources) == 0 {
		return nil, errors.New("session needs at least one source")
	}
	if cfg.Clock == nil || cfg.Packager == nil || cfg.Sink == nil {
		return nil, errors.New("session needs a clock, a packager and a sink")
	}

	id := uuid.New().String()
	c := &Controller{
		id:          id,
		cfg:         cfg,
		logger:      util.GetLogger().With("component", "session", "session_id", id),
		stopReq:     make(chan string, 1),
		workersDone: make(chan struct{}),
		done:        make(chan struct{}),
	}

	var seen [2]bool
	for _, src := range cfg.Sources {
		kind := src.Kind()
		if seen[kind] {
			return nil, fmt.Errorf("duplicate %s source", kind)
		}
		seen[kind] = true
		c.workers = append(c.workers, worker.New(worker.Config{
			Source:      src,
			Clock:       cfg.Clock,
			Packager:    cfg.Packager,
			Sink:        cfg.Sink,
			PollTimeout: cfg.PollTimeout,
			KeepSource:  true,
		}))
	}
	return c, nil
}

// ID returns the session id.
func (c *Controller) ID() string {
	return c.id
}

// Start runs the workers. The session ends when every stream reached its
// end, a worker fails, ctx is canceled or a stop is requested.
func (c *Controller) Start(ctx context.Context) error {
	select {
	case <-c.done:
		return core.ErrSessionStopped
	default:
	}
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("session already started")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range c.workers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	go func() {
		c.groupErr = g.Wait()
		close(c.workersDone)
	}()
	go c.monitor(ctx)

	c.logger.Info("Session started", "streams", len(c.workers))
	return nil
}

func (c *Controller) monitor(ctx context.Context) {
	var reason string
	select {
	case <-c.workersDone:
		switch {
		case c.groupErr != nil:
			reason = ReasonWorkerFailed
		case ctx.Err() != nil:
			reason = ReasonCanceled
		default:
			reason = ReasonWorkersFinished
		}
	case reason = <-c.stopReq:
	case <-ctx.Done():
		reason = ReasonCanceled
	}
	c.teardown(reason)
}

// RequestStop asks the session to stop without waiting for it. External
// stop notifications go through here and follow the same teardown as Stop.
func (c *Controller) RequestStop(reason string) {
	if !c.started.Load() {
		c.teardown(reason)
		return
	}
	select {
	case c.stopReq <- reason:
	default:
	}
}

// Stop tears the session down and waits for it. It is idempotent.
func (c *Controller) Stop() error {
	c.teardown(ReasonStopped)
	return c.err
}

// Wait blocks until the session is torn down and returns its error.
func (c *Controller) Wait() error {
	<-c.done
	return c.err
}

// Done is closed once teardown completed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Reason returns why the session stopped, empty while it runs.
func (c *Controller) Reason() string {
	select {
	case <-c.done:
		return c.reason
	default:
		return ""
	}
}

// Stats returns the counters of each worker.
func (c *Controller) Stats() map[core.StreamKind]worker.Stats {
	stats := make(map[core.StreamKind]worker.Stats, len(c.workers))
	for _, w := range c.workers {
		stats[w.Kind()] = w.Stats()
	}
	return stats
}

// teardown quits the workers, waits for them, stops the sink and then
// releases the capture side: the sources, then the external resources.
// It runs once.
func (c *Controller) teardown(reason string) {
	c.stopOnce.Do(func() {
		c.logger.Info("Stopping session", "reason", reason)

		for _, w := range c.workers {
			w.Quit()
		}
		var errs []error
		if c.started.Load() {
			<-c.workersDone
			if c.groupErr != nil {
				errs = append(errs, c.groupErr)
			}
		}

		if err := c.cfg.Sink.Stop(); err != nil {
			c.logger.Error("Failed to stop sink", "error", err)
			errs = append(errs, fmt.Errorf("failed to stop sink: %w", err))
		}

		for _, src := range c.cfg.Sources {
			if err := src.Stop(); err != nil {
				c.logger.Warn("Failed to stop source", "stream", src.Kind().String(), "error", err)
				errs = append(errs, fmt.Errorf("failed to stop %s source: %w", src.Kind(), err))
			}
		}

		for i := len(c.cfg.Resources) - 1; i >= 0; i-- {
			if err := c.cfg.Resources[i].Close(); err != nil {
				c.logger.Warn("Failed to close resource", "error", err)
				errs = append(errs, err)
			}
		}

		c.reason = reason
		c.err = errors.Join(errs...)
		for _, w := range c.workers {
			st := w.Stats()
			c.logger.Info("Stream summary",
				"stream", w.Kind().String(),
				"state", w.State().String(),
				"units", st.Units,
				"tags", st.Tags,
				"format_changes", st.FormatChanges)
		}
		c.logger.Info("Session stopped", "reason", reason, "error", c.err)
		close(c.done)
	})
}
