package core

import "time"

// Packager turns synchronized access units into wire tags.
type Packager interface {
	// Configure records a new stream format and returns the tags that must
	// precede the next frame of that stream.
	Configure(kind StreamKind, format Format) ([]WireTag, error)

	// Package converts one access unit. A zero-length payload returns
	// ErrEndOfStream.
	Package(kind StreamKind, ts time.Duration, unit AccessUnit) ([]WireTag, error)
}

// Sink receives the output of both encode workers. Implementations must be
// safe for concurrent use by one worker per stream.
type Sink interface {
	// AddTrack announces a stream format
	AddTrack(kind StreamKind, format Format) error

	// Collect takes ownership of one tag
	Collect(tag WireTag) error

	// Stop flushes and finalizes the sink; repeated calls are no-ops
	Stop() error
}
