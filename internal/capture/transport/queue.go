// Package transport delivers wire tags to a byte stream or a websocket.
package transport

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/babelcloud/pushscreen/internal/capture/core"
	"github.com/babelcloud/pushscreen/internal/util"
)

// DefaultQueueCapacity is the number of droppable tags a Queue holds
// before it starts dropping.
const DefaultQueueCapacity = 256

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("transport queue closed")

// Sender accepts tags for delivery.
type Sender interface {
	Enqueue(tag core.WireTag) error
}

// TagWriter writes tags to a destination in call order.
type TagWriter interface {
	WriteTag(tag core.WireTag) error
	Close() error
}

// QueueStats are the counters of a Queue.
type QueueStats struct {
	Enqueued int64
	Written  int64
	Dropped  int64
}

// Queue is a Sender that decouples the encode workers from a slow writer.
// Tags keep their enqueue order. When more than capacity droppable tags are
// waiting, new droppable tags are dropped; config tags are never dropped.
// After a video frame is dropped, video frames are dropped until the next
// key frame since the decoder could not use them.
type Queue struct {
	writer   TagWriter
	capacity int
	logger   *slog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	items     []core.WireTag
	frames    int
	skipVideo bool
	closed    bool
	err       error

	closeOnce sync.Once
	done      chan struct{}

	enqueued atomic.Int64
	written  atomic.Int64
	dropped  atomic.Int64
}

var _ Sender = (*Queue)(nil)

// NewQueue creates a queue and starts delivering to w.
func NewQueue(w TagWriter, capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	q := &Queue{
		writer:   w,
		capacity: capacity,
		logger:   util.GetLogger().With("component", "transport_queue"),
		done:     make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Enqueue implements Sender. It never blocks on the writer.
func (q *Queue) Enqueue(tag core.WireTag) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return q.err
	}
	if q.closed {
		return ErrQueueClosed
	}
	q.enqueued.Add(1)

	if tag.Droppable {
		isVideo := tag.Stream() == core.Video
		if isVideo && q.skipVideo {
			if !tag.KeyFrame {
				q.dropped.Add(1)
				return nil
			}
			q.skipVideo = false
		}
		if q.frames >= q.capacity {
			q.dropped.Add(1)
			if isVideo {
				q.skipVideo = true
			}
			q.logger.Debug("Dropping tag", "kind", tag.Kind.String(), "queued", len(q.items))
			return nil
		}
		q.frames++
	}

	q.items = append(q.items, tag)
	q.cond.Signal()
	return nil
}

// Close delivers the tags already queued, closes the writer and returns
// the first write error.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.cond.Broadcast()
		q.mu.Unlock()

		<-q.done
		if err := q.writer.Close(); err != nil {
			q.mu.Lock()
			if q.err == nil {
				q.err = err
			}
			q.mu.Unlock()
		}

		stats := q.Stats()
		q.logger.Info("Transport queue closed",
			"enqueued", stats.Enqueued, "written", stats.Written, "dropped", stats.Dropped)
	})

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Enqueued: q.enqueued.Load(),
		Written:  q.written.Load(),
		Dropped:  q.dropped.Load(),
	}
}

func (q *Queue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		tag := q.items[0]
		q.items[0] = core.WireTag{}
		q.items = q.items[1:]
		if tag.Droppable {
			q.frames--
		}
		q.mu.Unlock()

		if err := q.writer.WriteTag(tag); err != nil {
			q.logger.Error("Failed to write tag", "kind", tag.Kind.String(), "error", err)
			q.mu.Lock()
			q.err = err
			q.closed = true
			q.dropped.Add(int64(len(q.items)))
			q.items = nil
			q.mu.Unlock()
			return
		}
		q.written.Add(1)
	}
}
