package transport

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/babelcloud/pushscreen/internal/capture/core"
	"github.com/babelcloud/pushscreen/internal/capture/flv"
)

// FLVWriter writes tags as an FLV byte stream: the file header once, then
// each tag followed by its PreviousTagSize.
type FLVWriter struct {
	mu            sync.Mutex
	w             io.WriteCloser
	hasAudio      bool
	hasVideo      bool
	headerWritten bool
	buf           []byte
}

var _ TagWriter = (*FLVWriter)(nil)

// NewFLVWriter creates a writer on w. The stream header announces the
// given tracks.
func NewFLVWriter(w io.WriteCloser, hasAudio, hasVideo bool) *FLVWriter {
	return &FLVWriter{w: w, hasAudio: hasAudio, hasVideo: hasVideo}
}

// WriteTag implements TagWriter.
func (f *FLVWriter) WriteTag(tag core.WireTag) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf = f.buf[:0]
	if !f.headerWritten {
		f.buf = append(f.buf, flv.FileHeader(f.hasAudio, f.hasVideo)...)
	}

	var err error
	f.buf, err = flv.AppendTag(f.buf, tagType(tag), tag.TimestampMs(), tag.Payload)
	if err != nil {
		return err
	}

	if _, err := f.w.Write(f.buf); err != nil {
		return errors.Wrap(err, "failed to write flv tag")
	}
	f.headerWritten = true
	return nil
}

// Close implements TagWriter.
func (f *FLVWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w.Close()
}

func tagType(tag core.WireTag) uint8 {
	if tag.Stream() == core.Video {
		return flv.TagTypeVideo
	}
	return flv.TagTypeAudio
}
