package transport

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/babelcloud/pushscreen/internal/capture/core"
	"github.com/babelcloud/pushscreen/internal/util"
)

// Fanout is a Sender that delivers every tag to several destinations. It
// caches the latest config tag of each stream and replays them to a
// destination added mid-stream, so its decoder can start at the next key
// frame. A destination whose Enqueue fails is removed; the others keep
// receiving.
type Fanout struct {
	logger *slog.Logger

	mu      sync.RWMutex
	dests   map[string]Sender
	configs [2]*core.WireTag
	closed  bool
}

var _ Sender = (*Fanout)(nil)

// NewFanout creates an empty fanout.
func NewFanout() *Fanout {
	return &Fanout{
		logger: util.GetLogger().With("component", "fanout"),
		dests:  make(map[string]Sender),
	}
}

// Add registers a destination under id, replacing any previous one.
func (f *Fanout) Add(id string, dest Sender) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrQueueClosed
	}
	for _, cfg := range f.configs {
		if cfg == nil {
			continue
		}
		if err := dest.Enqueue(*cfg); err != nil {
			return err
		}
	}
	f.dests[id] = dest
	f.logger.Info("Destination added", "id", id, "total", len(f.dests))
	return nil
}

// Remove closes and unregisters a destination.
func (f *Fanout) Remove(id string) error {
	f.mu.Lock()
	dest, ok := f.dests[id]
	delete(f.dests, id)
	remaining := len(f.dests)
	f.mu.Unlock()

	if !ok {
		return nil
	}
	f.logger.Info("Destination removed", "id", id, "remaining", remaining)
	return closeSender(dest)
}

// Len returns the number of destinations.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.dests)
}

// Enqueue implements Sender. It fails only when no destination is left.
func (f *Fanout) Enqueue(tag core.WireTag) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrQueueClosed
	}
	if tag.IsConfig() {
		cached := tag
		f.configs[streamSlot(tag.Stream())] = &cached
	}
	dests := make(map[string]Sender, len(f.dests))
	for id, d := range f.dests {
		dests[id] = d
	}
	f.mu.Unlock()

	var failed []string
	for id, d := range dests {
		if err := d.Enqueue(tag); err != nil {
			f.logger.Warn("Dropping destination", "id", id, "error", err)
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		_ = f.Remove(id)
	}

	if len(dests) > 0 && len(failed) == len(dests) {
		return errors.New("all destinations failed")
	}
	return nil
}

// Close closes every destination and returns the first error.
func (f *Fanout) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	dests := f.dests
	f.dests = make(map[string]Sender)
	f.mu.Unlock()

	var first error
	for id, d := range dests {
		if err := closeSender(d); err != nil {
			f.logger.Warn("Failed to close destination", "id", id, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func closeSender(s Sender) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func streamSlot(kind core.StreamKind) int {
	if kind == core.Video {
		return 1
	}
	return 0
}
