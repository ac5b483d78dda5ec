package aac

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/babelcloud/pushscreen/internal/capture/core"
)

// ObjectTypeLC is the MPEG-4 audio object type of AAC-LC.
const ObjectTypeLC = 2

// SamplesPerFrame is the number of PCM samples in one AAC-LC frame.
const SamplesPerFrame = 1024

// NewFormat builds an audio format and its AudioSpecificConfig.
func NewFormat(objectType, sampleRate, channelCount int) (core.Format, error) {
	asc := mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectType(objectType),
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
	}
	cfg, err := asc.Marshal()
	if err != nil {
		return core.Format{}, fmt.Errorf("failed to marshal audio specific config: %w", err)
	}
	return core.Format{
		Kind: core.Audio,
		Audio: &core.AudioFormat{
			Codec:        "aac",
			SampleRate:   sampleRate,
			ChannelCount: channelCount,
			ObjectType:   objectType,
			Config:       cfg,
		},
	}, nil
}

// FormatFromConfig decodes a marshalled AudioSpecificConfig.
func FormatFromConfig(cfg []byte) (core.Format, error) {
	var asc mpeg4audio.AudioSpecificConfig
	if err := asc.Unmarshal(cfg); err != nil {
		return core.Format{}, fmt.Errorf("failed to parse audio specific config: %w", err)
	}
	return core.Format{
		Kind: core.Audio,
		Audio: &core.AudioFormat{
			Codec:        "aac",
			SampleRate:   asc.SampleRate,
			ChannelCount: asc.ChannelCount,
			ObjectType:   int(asc.Type),
			Config:       append([]byte(nil), cfg...),
		},
	}, nil
}

// FormatFromADTS derives an audio format from an ADTS framed packet.
func FormatFromADTS(data []byte) (core.Format, error) {
	h, err := ParseADTS(data)
	if err != nil {
		return core.Format{}, err
	}
	return NewFormat(h.ObjectType, h.SampleRate, h.ChannelCount)
}

// AudioSpecificConfig returns the decoded config of an audio format.
func AudioSpecificConfig(f *core.AudioFormat) (mpeg4audio.AudioSpecificConfig, error) {
	var asc mpeg4audio.AudioSpecificConfig
	if len(f.Config) > 0 {
		if err := asc.Unmarshal(f.Config); err != nil {
			return asc, fmt.Errorf("failed to parse audio specific config: %w", err)
		}
		return asc, nil
	}
	objectType := f.ObjectType
	if objectType == 0 {
		objectType = ObjectTypeLC
	}
	return mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectType(objectType),
		SampleRate:   f.SampleRate,
		ChannelCount: f.ChannelCount,
	}, nil
}

// ConfigBytes returns the marshalled AudioSpecificConfig of an audio format.
func ConfigBytes(f *core.AudioFormat) ([]byte, error) {
	if len(f.Config) > 0 {
		return f.Config, nil
	}
	asc, err := AudioSpecificConfig(f)
	if err != nil {
		return nil, err
	}
	cfg, err := asc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audio specific config: %w", err)
	}
	return cfg, nil
}
