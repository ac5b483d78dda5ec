package scrcpy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
)

// Opener opens the byte stream of one scrcpy media socket.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// NewOpener returns an opener for addr, which is either tcp://host:port
// or a path to a recorded stream.
func NewOpener(addr string) (Opener, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty source address")
	}

	if !strings.Contains(addr, "://") {
		return func(ctx context.Context) (io.ReadCloser, error) {
			return os.Open(addr)
		}, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid source address %q: %w", addr, err)
	}
	switch u.Scheme {
	case "tcp":
		if u.Host == "" {
			return nil, fmt.Errorf("missing host in %q", addr)
		}
		return func(ctx context.Context) (io.ReadCloser, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", u.Host)
		}, nil
	case "file":
		return func(ctx context.Context) (io.ReadCloser, error) {
			return os.Open(u.Path)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported source scheme %q", u.Scheme)
	}
}

// ReaderOpener wraps an already open stream.
func ReaderOpener(r io.Reader) Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		if rc, ok := r.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(r), nil
	}
}
