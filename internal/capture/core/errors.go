package core

import "errors"

var (
	// ErrNotReady is returned by sources that have nothing to deliver yet.
	ErrNotReady = errors.New("source not ready")

	// ErrEndOfStream marks the end of one media stream.
	ErrEndOfStream = errors.New("end of stream")

	// ErrSessionStopped is returned when operating on a stopped session.
	ErrSessionStopped = errors.New("session stopped")
)
