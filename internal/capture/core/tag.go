package core

import "time"

// TagKind is the type of a wire tag.
type TagKind int

const (
	AudioConfig TagKind = iota
	AudioFrame
	VideoConfig
	VideoFrame
)

func (k TagKind) String() string {
	switch k {
	case AudioConfig:
		return "audio-config"
	case AudioFrame:
		return "audio-frame"
	case VideoConfig:
		return "video-config"
	case VideoFrame:
		return "video-frame"
	default:
		return "unknown"
	}
}

// WireTag is a packaged, self-contained record ready for a transport or a
// container. Payload already carries the per-format tag header.
type WireTag struct {
	Kind      TagKind
	Timestamp time.Duration // Relative to the stream origin
	Droppable bool
	KeyFrame  bool
	Payload   []byte
}

// Stream returns the media stream the tag belongs to.
func (t WireTag) Stream() StreamKind {
	if t.Kind == VideoConfig || t.Kind == VideoFrame {
		return Video
	}
	return Audio
}

// IsConfig reports whether the tag carries a decoder configuration record.
func (t WireTag) IsConfig() bool {
	return t.Kind == AudioConfig || t.Kind == VideoConfig
}

// TimestampMs returns the relative timestamp in whole milliseconds.
func (t WireTag) TimestampMs() uint32 {
	if t.Timestamp <= 0 {
		return 0
	}
	return uint32(t.Timestamp / time.Millisecond)
}
