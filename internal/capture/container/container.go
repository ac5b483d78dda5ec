// Package container writes two-track audio/video files.
package container

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/babelcloud/pushscreen/internal/capture/core"
)

// Container formats
const (
	FormatMP4  = "mp4"
	FormatWebM = "webm"
)

// SampleInfo carries the timing of one sample.
type SampleInfo struct {
	DTS      time.Duration // Relative to the stream origin
	KeyFrame bool
}

// Writer is a two-phase container writer: every track is added before
// Start, samples are written after it. Implementations are not safe for
// concurrent use.
type Writer interface {
	// AddTrack registers a track and returns its index. Adding a track of
	// an already registered kind replaces its format and keeps the index.
	AddTrack(format core.Format) (int, error)

	// Start opens the destination and writes the header
	Start() error

	// WriteSample appends one sample to a track
	WriteSample(track int, payload []byte, info SampleInfo) error

	// Finalize flushes buffered samples and closes the destination. A
	// writer that was never started creates nothing.
	Finalize() error
}

// Opener creates the destination of a writer.
type Opener func() (io.WriteCloser, error)

// FileOpener creates path and its parent directories.
func FileOpener(path string) Opener {
	return func() (io.WriteCloser, error) {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "failed to create directory %s", dir)
			}
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create %s", path)
		}
		return f, nil
	}
}

// New creates a writer for a container format.
func New(format string, open Opener) (Writer, error) {
	switch format {
	case FormatMP4:
		return NewFMP4Writer(open), nil
	case FormatWebM:
		return NewWebMWriter(open), nil
	default:
		return nil, fmt.Errorf("unsupported container format %q", format)
	}
}

// trackSet keeps the registered tracks in registration order.
type trackSet struct {
	formats []core.Format
}

func (s *trackSet) add(format core.Format) (int, error) {
	switch {
	case format.Kind == core.Video && format.Video == nil,
		format.Kind == core.Audio && format.Audio == nil:
		return 0, fmt.Errorf("missing %s format", format.Kind)
	}
	for i, f := range s.formats {
		if f.Kind == format.Kind {
			s.formats[i] = format
			return i, nil
		}
	}
	s.formats = append(s.formats, format)
	return len(s.formats) - 1, nil
}

func (s *trackSet) check(track int) error {
	if track < 0 || track >= len(s.formats) {
		return fmt.Errorf("unknown track %d", track)
	}
	return nil
}
