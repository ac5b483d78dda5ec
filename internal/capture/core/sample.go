package core

import "fmt"

// StreamKind identifies one of the two media streams of a session.
type StreamKind int

const (
	Audio StreamKind = iota
	Video
)

func (k StreamKind) String() string {
	switch k {
	case Audio:
		return "audio"
	case Video:
		return "video"
	default:
		return fmt.Sprintf("stream(%d)", int(k))
	}
}

// AccessUnit represents one compressed unit produced by an encoder.
type AccessUnit struct {
	Kind         StreamKind
	Payload      []byte // Coded bytes (H.264 Annex-B or AAC)
	RawTimestamp int64  // Encoder clock, microseconds
	IsConfig     bool   // Codec configuration data, not a frame
	IsKeyFrame   bool   // Video only
}

// VideoFormat describes an H.264 encoder output.
type VideoFormat struct {
	Codec  string
	Width  int
	Height int
	SPS    []byte // Raw NAL unit, no start code
	PPS    []byte // Raw NAL unit, no start code
}

// AudioFormat describes an AAC encoder output.
type AudioFormat struct {
	Codec        string
	SampleRate   int
	ChannelCount int
	ObjectType   int    // MPEG-4 audio object type, 2 = AAC-LC
	Config       []byte // Marshalled AudioSpecificConfig
}

// Format is the output format reported by a source when it first becomes
// known or changes. Exactly one of Video and Audio is set.
type Format struct {
	Kind  StreamKind
	Video *VideoFormat
	Audio *AudioFormat
}

func (f Format) String() string {
	switch {
	case f.Video != nil:
		return fmt.Sprintf("%s %dx%d", f.Video.Codec, f.Video.Width, f.Video.Height)
	case f.Audio != nil:
		return fmt.Sprintf("%s %dHz %dch", f.Audio.Codec, f.Audio.SampleRate, f.Audio.ChannelCount)
	default:
		return "unknown"
	}
}
