// Package sink holds the two destinations of an encode session: the
// streaming collector and the file muxer.
package sink

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/babelcloud/pushscreen/internal/capture/core"
	"github.com/babelcloud/pushscreen/internal/capture/transport"
	"github.com/babelcloud/pushscreen/internal/util"
)

// Collector forwards every tag to a transport sender as soon as it is
// collected. It keeps no buffer; ordering within a stream comes from the
// single worker per stream.
type Collector struct {
	sender transport.Sender
	logger *slog.Logger

	stopOnce sync.Once
	stopErr  error
	stopped  atomic.Bool

	configs atomic.Int64
	frames  atomic.Int64
}

var _ core.Sink = (*Collector)(nil)

// NewCollector creates a collector. If sender is also an io.Closer it is
// closed by Stop.
func NewCollector(sender transport.Sender) *Collector {
	return &Collector{
		sender: sender,
		logger: util.GetLogger().With("component", "collector"),
	}
}

// AddTrack implements core.Sink. Formats reach the transport as config
// tags, so there is nothing to do here.
func (c *Collector) AddTrack(kind core.StreamKind, format core.Format) error {
	c.logger.Debug("Track format reported", "stream", kind.String(), "format", format.String())
	return nil
}

// Collect implements core.Sink.
func (c *Collector) Collect(tag core.WireTag) error {
	if c.stopped.Load() {
		return nil
	}
	if tag.IsConfig() {
		c.configs.Add(1)
	} else {
		c.frames.Add(1)
	}
	return c.sender.Enqueue(tag)
}

// Stop implements core.Sink.
func (c *Collector) Stop() error {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		if closer, ok := c.sender.(io.Closer); ok {
			c.stopErr = closer.Close()
		}
		c.logger.Info("Collector stopped", "config_tags", c.configs.Load(), "frame_tags", c.frames.Load())
	})
	return c.stopErr
}
