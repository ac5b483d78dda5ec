// Package timeline maps raw encoder timestamps onto per-stream relative,
// non-decreasing timelines.
package timeline

import (
	"sync/atomic"
	"time"

	"github.com/babelcloud/pushscreen/internal/capture/core"
)

// Options configures a Synchronizer.
type Options struct {
	// SharedOrigin makes both streams relative to the first unit seen on
	// either stream instead of their own first unit.
	SharedOrigin bool
}

// StreamClock is the timing state of one stream. It is owned by the worker
// of that stream and is not safe for concurrent use.
type StreamClock struct {
	started     bool
	origin      int64 // raw microseconds
	last        int64 // relative microseconds
	regressions int
}

// Started reports whether the clock has seen a unit.
func (c *StreamClock) Started() bool { return c.started }

// Origin returns the raw timestamp the clock is relative to.
func (c *StreamClock) Origin() int64 { return c.origin }

// Last returns the last emitted relative timestamp.
func (c *StreamClock) Last() time.Duration { return usToDuration(c.last) }

// Regressions returns how many timestamps were clamped.
func (c *StreamClock) Regressions() int { return c.regressions }

// Synchronizer converts raw timestamps into relative ones. Sync may be
// called concurrently for different stream kinds.
type Synchronizer struct {
	opts   Options
	clocks [2]StreamClock

	sharedOrigin atomic.Pointer[int64]
}

// NewSynchronizer creates a synchronizer with fresh clocks.
func NewSynchronizer(opts Options) *Synchronizer {
	return &Synchronizer{opts: opts}
}

// Sync returns the relative timestamp of a unit of the given stream. The
// first unit of a stream yields 0 (or its offset from the shared origin),
// and results never decrease.
func (s *Synchronizer) Sync(kind core.StreamKind, rawUs int64) time.Duration {
	c := &s.clocks[clockIndex(kind)]

	if !c.started {
		c.started = true
		c.origin = rawUs
		if s.opts.SharedOrigin {
			c.origin = s.shared(rawUs)
		}
	}

	rel := rawUs - c.origin
	if rel < 0 || rel < c.last {
		c.regressions++
		rel = c.last
	}
	c.last = rel
	return usToDuration(rel)
}

// Clock returns the clock of one stream.
func (s *Synchronizer) Clock(kind core.StreamKind) *StreamClock {
	return &s.clocks[clockIndex(kind)]
}

// Reset forgets all origins. It must not run concurrently with Sync.
func (s *Synchronizer) Reset() {
	s.clocks = [2]StreamClock{}
	s.sharedOrigin.Store(nil)
}

// shared publishes rawUs as the session origin if none is set yet and
// returns the winning origin.
func (s *Synchronizer) shared(rawUs int64) int64 {
	s.sharedOrigin.CompareAndSwap(nil, &rawUs)
	return *s.sharedOrigin.Load()
}

func clockIndex(kind core.StreamKind) int {
	if kind == core.Video {
		return 1
	}
	return 0
}

func usToDuration(us int64) time.Duration {
	return time.Duration(us) * time.Microsecond
}
