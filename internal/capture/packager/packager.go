// Package packager turns synchronized access units into wire tags.
package packager

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/babelcloud/pushscreen/internal/capture/core"
	"github.com/babelcloud/pushscreen/internal/util"
)

// DefaultPendingLimit bounds the frames held per stream before its format
// is known.
const DefaultPendingLimit = 64

// Options configures a Packager.
type Options struct {
	PendingLimit int
}

// framer builds tag payloads for one output framing.
type framer interface {
	name() string
	configTag(format core.Format) (core.WireTag, error)
	frameTag(kind core.StreamKind, ts time.Duration, unit core.AccessUnit) (core.WireTag, bool, error)
}

type pendingUnit struct {
	ts   time.Duration
	unit core.AccessUnit
}

// streamState belongs to the worker of one stream.
type streamState struct {
	configured bool
	format     core.Format
	pending    []pendingUnit
}

// Packager implements core.Packager. Configure and Package may be called
// concurrently for different stream kinds.
type Packager struct {
	framer framer
	opts   Options
	logger *slog.Logger

	streams [2]streamState

	configTags     atomic.Int64
	frameTags      atomic.Int64
	pendingDropped atomic.Int64
}

var _ core.Packager = (*Packager)(nil)

func newPackager(f framer, opts Options) *Packager {
	if opts.PendingLimit <= 0 {
		opts.PendingLimit = DefaultPendingLimit
	}
	return &Packager{
		framer: f,
		opts:   opts,
		logger: util.GetLogger().With("component", "packager", "framing", f.name()),
	}
}

// Configure implements core.Packager. It returns a fresh config tag
// followed by any frames held while the format was unknown.
func (p *Packager) Configure(kind core.StreamKind, format core.Format) ([]core.WireTag, error) {
	if format.Kind != kind {
		return nil, fmt.Errorf("format for %s reported on %s stream", format.Kind, kind)
	}

	cfg, err := p.framer.configTag(format)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s config tag: %w", kind, err)
	}
	cfg.Timestamp = 0
	cfg.Droppable = false

	st := &p.streams[streamIndex(kind)]
	st.configured = true
	st.format = format
	p.configTags.Add(1)

	tags := []core.WireTag{cfg}
	if len(st.pending) > 0 {
		p.logger.Debug("Releasing held frames", "stream", kind.String(), "count", len(st.pending))
		for _, pu := range st.pending {
			tag, ok, err := p.framer.frameTag(kind, pu.ts, pu.unit)
			if err != nil {
				return nil, err
			}
			if ok {
				tags = append(tags, tag)
				p.frameTags.Add(1)
			}
		}
		st.pending = nil
	}
	return tags, nil
}

// Package implements core.Packager. Frames arriving before the stream's
// format is known are held and released by the next Configure.
func (p *Packager) Package(kind core.StreamKind, ts time.Duration, unit core.AccessUnit) ([]core.WireTag, error) {
	if len(unit.Payload) == 0 {
		return nil, core.ErrEndOfStream
	}
	if unit.IsConfig {
		// Codec config travels through Configure only.
		return nil, nil
	}

	st := &p.streams[streamIndex(kind)]
	if !st.configured {
		if len(st.pending) >= p.opts.PendingLimit {
			st.pending = st.pending[1:]
			p.pendingDropped.Add(1)
		}
		st.pending = append(st.pending, pendingUnit{ts: ts, unit: unit})
		return nil, nil
	}

	tag, ok, err := p.framer.frameTag(kind, ts, unit)
	if err != nil || !ok {
		return nil, err
	}
	p.frameTags.Add(1)
	return []core.WireTag{tag}, nil
}

// Format returns the current format of a stream.
func (p *Packager) Format(kind core.StreamKind) (core.Format, bool) {
	st := &p.streams[streamIndex(kind)]
	return st.format, st.configured
}

// Stats returns the tag counters.
func (p *Packager) Stats() (configTags, frameTags, pendingDropped int64) {
	return p.configTags.Load(), p.frameTags.Load(), p.pendingDropped.Load()
}

func streamIndex(kind core.StreamKind) int {
	if kind == core.Video {
		return 1
	}
	return 0
}
