package packager

import (
	"fmt"
	"time"

	"github.com/babelcloud/pushscreen/internal/capture/aac"
	"github.com/babelcloud/pushscreen/internal/capture/core"
	"github.com/babelcloud/pushscreen/internal/capture/flv"
)

// NewFLV creates a packager producing FLV tag bodies for live transport.
func NewFLV(opts Options) *Packager {
	return newPackager(flvFramer{}, opts)
}

type flvFramer struct{}

func (flvFramer) name() string { return "flv" }

func (flvFramer) configTag(format core.Format) (core.WireTag, error) {
	switch format.Kind {
	case core.Video:
		if format.Video == nil {
			return core.WireTag{}, fmt.Errorf("missing video format")
		}
		body, err := flv.VideoConfigBody(format.Video.SPS, format.Video.PPS)
		if err != nil {
			return core.WireTag{}, err
		}
		return core.WireTag{Kind: core.VideoConfig, KeyFrame: true, Payload: body}, nil
	default:
		if format.Audio == nil {
			return core.WireTag{}, fmt.Errorf("missing audio format")
		}
		asc, err := aac.ConfigBytes(format.Audio)
		if err != nil {
			return core.WireTag{}, err
		}
		return core.WireTag{Kind: core.AudioConfig, Payload: flv.AudioConfigBody(asc)}, nil
	}
}

func (flvFramer) frameTag(kind core.StreamKind, ts time.Duration, unit core.AccessUnit) (core.WireTag, bool, error) {
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
			Payload:   flv.VideoFrameBody(avcc, key),
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
		Payload:   flv.AudioFrameBody(raw),
	}, true, nil
}
