// Package scrcpy adapts a scrcpy media socket (or a recording of one) to
// the encoder output source interface.
package scrcpy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/babelcloud/pushscreen/internal/capture/aac"
	"github.com/babelcloud/pushscreen/internal/capture/core"
	"github.com/babelcloud/pushscreen/internal/capture/h264"
	"github.com/babelcloud/pushscreen/internal/capture/protocol"
	"github.com/babelcloud/pushscreen/internal/util"
)

const eventBufferSize = 64

// Options configures a Source.
type Options struct {
	// DeviceName is set when the socket starts with the 64-byte device name
	DeviceName bool
}

type result struct {
	event core.Event
	err   error
}

// Source implements core.Source for one scrcpy media socket
type Source struct {
	kind   core.StreamKind
	open   Opener
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	conn    io.ReadCloser
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool

	events chan result
	ended  bool

	// reader goroutine state
	meta      *protocol.StreamMeta
	video     *core.VideoFormat
	audio     *core.AudioFormat
	maxPacket uint32
}

// NewSource creates a new scrcpy source for one stream kind
func NewSource(kind core.StreamKind, open Opener, opts Options) *Source {
	maxPacket := uint32(protocol.MaxAudioPacketSize)
	if kind == core.Video {
		maxPacket = protocol.MaxVideoPacketSize
	}
	return &Source{
		kind:      kind,
		open:      open,
		opts:      opts,
		logger:    util.GetLogger().With("component", "scrcpy_source", "stream", kind.String()),
		events:    make(chan result, eventBufferSize),
		maxPacket: maxPacket,
	}
}

// Kind implements core.Source
func (s *Source) Kind() core.StreamKind {
	return s.kind
}

// Start implements core.Source
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("source already started")
	}
	if s.stopped {
		return core.ErrSessionStopped
	}

	conn, err := s.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open %s stream: %w", s.kind, err)
	}

	if err := s.readHeader(conn); err != nil {
		conn.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.conn = conn
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.runReader(ctx, conn, s.done)

	s.logger.Info("Scrcpy source started", "codec", protocol.CodecName(s.meta.CodecID))
	return nil
}

// Stop implements core.Source
func (s *Source) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel, conn, done := s.cancel, s.conn, s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	err := conn.Close()
	<-done

	s.logger.Info("Scrcpy source stopped")
	if err != nil && !isClosedErr(err) {
		return fmt.Errorf("failed to close %s stream: %w", s.kind, err)
	}
	return nil
}

// Poll implements core.Source
func (s *Source) Poll(timeout time.Duration) (core.Event, error) {
	if s.ended {
		return core.Event{Type: core.EventEndOfStream}, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r, ok := <-s.events:
		if !ok {
			s.ended = true
			return core.Event{Type: core.EventEndOfStream}, nil
		}
		if r.event.Type == core.EventEndOfStream {
			s.ended = true
		}
		return r.event, r.err
	case <-timer.C:
		return core.Event{Type: core.EventWouldBlock}, nil
	}
}

// readHeader reads the optional device name and the codec header
func (s *Source) readHeader(r io.Reader) error {
	if s.opts.DeviceName {
		name, err := protocol.ReadDeviceName(r)
		if err != nil {
			return err
		}
		s.logger.Info("Device name read", "name", name)
	}

	meta, err := protocol.ReadStreamMeta(r)
	if err != nil {
		return err
	}

	switch {
	case s.kind == core.Video && meta.CodecID != protocol.CodecIDH264:
		return fmt.Errorf("unsupported video codec %s", protocol.CodecName(meta.CodecID))
	case s.kind == core.Audio && meta.CodecID != protocol.CodecIDAAC:
		return fmt.Errorf("unsupported audio codec %s", protocol.CodecName(meta.CodecID))
	}

	s.meta = meta
	s.logger.Debug("Stream metadata read",
		"codec_id", meta.CodecID, "width", meta.Width, "height", meta.Height)
	return nil
}

// runReader reads packets until the stream ends and turns them into events
func (s *Source) runReader(ctx context.Context, r io.Reader, done chan struct{}) {
	defer close(done)
	defer close(s.events)

	packets := 0
	for {
		packet, err := protocol.ReadPacket(r, s.maxPacket)
		if err != nil {
			if ctx.Err() != nil || err == io.EOF || isClosedErr(err) {
				s.logger.Info("Stream ended", "packets", packets)
				s.emit(ctx, result{event: core.Event{Type: core.EventEndOfStream}})
				return
			}
			s.logger.Error("Failed to read packet", "error", err, "packets", packets)
			s.emit(ctx, result{err: fmt.Errorf("failed to read %s packet: %w", s.kind, err)})
			return
		}
		packets++

		events, err := s.translate(packet)
		if err != nil {
			s.emit(ctx, result{err: err})
			return
		}
		for _, ev := range events {
			if !s.emit(ctx, result{event: ev}) {
				return
			}
		}
	}
}

func (s *Source) emit(ctx context.Context, r result) bool {
	select {
	case s.events <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// translate maps one packet to the events it produces
func (s *Source) translate(p *protocol.Packet) ([]core.Event, error) {
	if s.kind == core.Video {
		return s.translateVideo(p)
	}
	return s.translateAudio(p)
}

func (s *Source) translateVideo(p *protocol.Packet) ([]core.Event, error) {
	if p.IsConfig {
		sps, pps, err := h264.ParseParameterSets(p.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid video config packet: %w", err)
		}
		return []core.Event{s.videoFormatChanged(sps, pps)}, nil
	}

	var events []core.Event

	// Some encoders repeat parameter sets in front of IDR frames instead
	// of sending a config packet.
	if nalus, err := h264.SplitAnnexB(p.Data); err == nil {
		sps, pps := h264.ParameterSets(nalus)
		if sps != nil && pps != nil && s.videoChanged(sps, pps) {
			events = append(events, s.videoFormatChanged(sps, pps))
		}
	}

	events = append(events, core.Event{
		Type: core.EventUnit,
		Unit: core.AccessUnit{
			Kind:         core.Video,
			Payload:      p.Data,
			RawTimestamp: int64(p.PTS),
			IsKeyFrame:   p.IsKeyFrame,
		},
	})
	return events, nil
}

func (s *Source) videoChanged(sps, pps []byte) bool {
	return s.video == nil || !bytes.Equal(s.video.SPS, sps) || !bytes.Equal(s.video.PPS, pps)
}

func (s *Source) videoFormatChanged(sps, pps []byte) core.Event {
	width, height := int(s.meta.Width), int(s.meta.Height)
	if w, h, err := h264.Dimensions(sps); err == nil {
		width, height = w, h
	} else {
		s.logger.Warn("Failed to decode sps, using stream header size", "error", err)
	}

	s.video = &core.VideoFormat{
		Codec:  "h264",
		Width:  width,
		Height: height,
		SPS:    append([]byte(nil), sps...),
		PPS:    append([]byte(nil), pps...),
	}
	s.logger.Info("Video format changed", "width", width, "height", height)
	return core.Event{
		Type:   core.EventFormatChanged,
		Format: core.Format{Kind: core.Video, Video: s.video},
	}
}

func (s *Source) translateAudio(p *protocol.Packet) ([]core.Event, error) {
	if p.IsConfig {
		format, err := aac.FormatFromConfig(p.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid audio config packet: %w", err)
		}
		s.audio = format.Audio
		s.logger.Info("Audio format changed", "format", format.String())
		return []core.Event{{Type: core.EventFormatChanged, Format: format}}, nil
	}

	var events []core.Event
	if s.audio == nil && aac.HasADTS(p.Data) {
		format, err := aac.FormatFromADTS(p.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid adts header: %w", err)
		}
		s.audio = format.Audio
		s.logger.Info("Audio format derived from adts", "format", format.String())
		events = append(events, core.Event{Type: core.EventFormatChanged, Format: format})
	}

	events = append(events, core.Event{
		Type: core.EventUnit,
		Unit: core.AccessUnit{
			Kind:         core.Audio,
			Payload:      p.Data,
			RawTimestamp: int64(p.PTS),
		},
	})
	return events, nil
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
