package core

import (
	"context"
	"time"
)

// EventType is the outcome of one Source poll.
type EventType int

const (
	EventWouldBlock EventType = iota
	EventUnit
	EventFormatChanged
	EventEndOfStream
)

func (t EventType) String() string {
	switch t {
	case EventWouldBlock:
		return "would-block"
	case EventUnit:
		return "unit"
	case EventFormatChanged:
		return "format-changed"
	case EventEndOfStream:
		return "end-of-stream"
	default:
		return "unknown"
	}
}

// Event is returned by Source.Poll. Unit is set for EventUnit and Format
// for EventFormatChanged.
type Event struct {
	Type   EventType
	Unit   AccessUnit
	Format Format
}

// Source defines the interface for an encoder output of one media stream.
type Source interface {
	// Kind returns the media stream this source produces
	Kind() StreamKind

	// Start begins the underlying encoder
	Start(ctx context.Context) error

	// Poll waits at most timeout for the next event. A transient condition
	// may be reported as ErrNotReady; any other error is fatal.
	Poll(timeout time.Duration) (Event, error)

	// Stop releases the underlying encoder
	Stop() error
}
