package packager

import (
	"fmt"
	"time"

	"github.com/babelcloud/pushscreen/internal/capture/aac"
	"github.com/babelcloud/pushscreen/internal/capture/core"
	"github.com/babelcloud/pushscreen/internal/capture/h264"
)

// NewSample creates a packager producing container samples: length-prefixed
// NAL units for video and raw AAC frames for audio. Config tags carry the
// bare decoder configuration record.
func NewSample(opts Options) *Packager {
	return newPackager(sampleFramer{}, opts)
}

type sampleFramer struct{}

func (sampleFramer) name() string { return "sample" }

func (sampleFramer) configTag(format core.Format) (core.WireTag, error) {
	switch format.Kind {
	case core.Video:
		if format.Video == nil {
			return core.WireTag{}, fmt.Errorf("missing video format")
		}
		record, err := h264.DecoderConfigurationRecord(format.Video.SPS, format.Video.PPS)
		if err != nil {
			return core.WireTag{}, err
		}
		return core.WireTag{Kind: core.VideoConfig, KeyFrame: true, Payload: record}, nil
	default:
		if format.Audio == nil {
			return core.WireTag{}, fmt.Errorf("missing audio format")
		}
		asc, err := aac.ConfigBytes(format.Audio)
		if err != nil {
			return core.WireTag{}, err
		}
		return core.WireTag{Kind: core.AudioConfig, Payload: asc}, nil
	}
}

func (sampleFramer) frameTag(kind core.StreamKind, ts time.Duration, unit core.AccessUnit) (core.WireTag, bool, error) {
	if kind == core.Video {
		avcc, key, ok, err := videoSample(unit)
		if err != nil || !ok {
			return core.WireTag{}, false, err
		}
		return core.WireTag{
			Kind:      core.VideoFrame,
			Timestamp: ts,
			Droppable: true,
			KeyFrame:  key,
			Payload:   avcc,
		}, true, nil
	}

	raw := aac.StripADTS(unit.Payload)
	if len(raw) == 0 {
		return core.WireTag{}, false, nil
	}
	return core.WireTag{
		Kind:      core.AudioFrame,
		Timestamp: ts,
		Droppable: true,
		Payload:   raw,
	}, true, nil
}

// videoSample converts an Annex-B access unit into length-prefixed frame
// NAL units. Payloads without a start code are taken as a single NAL unit.
// The unit is a key frame when the source flagged it or its first slice is
// an IDR slice. ok is false when nothing but parameter sets remain.
func videoSample(unit core.AccessUnit) (avcc []byte, key, ok bool, err error) {
	nalus, splitErr := h264.SplitAnnexB(unit.Payload)
	if splitErr != nil {
		nalus = [][]byte{unit.Payload}
	}

	nalus = h264.FrameNALUs(nalus)
	if len(nalus) == 0 {
		return nil, false, false, nil
	}

	avcc, err = h264.AVCC(nalus)
	if err != nil {
		return nil, false, false, fmt.Errorf("failed to frame video sample: %w", err)
	}
	return avcc, unit.IsKeyFrame || h264.IsKeyFrame(nalus), true, nil
}
