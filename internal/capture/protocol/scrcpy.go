package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Scrcpy packet header size
const PacketHeaderSize = 12

// Packet flags
const (
	PacketFlagConfig   = uint64(1) << 63
	PacketFlagKeyFrame = uint64(1) << 62
	PacketPTSMask      = PacketFlagKeyFrame - 1
)

// Codec IDs
const (
	CodecIDH264     = uint32(0x68323634) // "h264" in ASCII
	CodecIDH265     = uint32(0x68323635) // "h265" in ASCII
	CodecIDAV1      = uint32(0x00617631) // "av1" in ASCII
	CodecIDOPUS     = uint32(0x6f707573) // "opus" in ASCII
	CodecIDAAC      = uint32(0x00616163) // "aac" in ASCII
	CodecIDFLAC     = uint32(0x666c6163) // "flac" in ASCII
	CodecIDRAW      = uint32(0x00726177) // "raw" in ASCII
	CodecIDDisabled = uint32(0x80000000) // Audio/Video disabled
)

// DeviceNameLength is the fixed size of the optional device name field.
const DeviceNameLength = 64

// Packet size limits
const (
	MaxVideoPacketSize = 10 * 1024 * 1024
	MaxAudioPacketSize = 1 * 1024 * 1024
)

// Packet is one media packet of a scrcpy stream.
type Packet struct {
	PTS        uint64 // Microseconds
	Data       []byte
	IsKeyFrame bool
	IsConfig   bool
}

// StreamMeta is the codec header sent at the start of a media socket.
type StreamMeta struct {
	CodecID uint32
	Width   uint32 // Video only
	Height  uint32 // Video only
}

// CodecName returns the ASCII name of a codec id.
func CodecName(id uint32) string {
	switch id {
	case CodecIDH264:
		return "h264"
	case CodecIDH265:
		return "h265"
	case CodecIDAV1:
		return "av1"
	case CodecIDOPUS:
		return "opus"
	case CodecIDAAC:
		return "aac"
	case CodecIDFLAC:
		return "flac"
	case CodecIDRAW:
		return "raw"
	case CodecIDDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("0x%08x", id)
	}
}

// IsVideoCodec reports whether id names a video codec.
func IsVideoCodec(id uint32) bool {
	return id == CodecIDH264 || id == CodecIDH265 || id == CodecIDAV1
}

// ReadPacket reads one packet. io.EOF is returned only when the stream ends
// cleanly on a packet boundary.
func ReadPacket(reader io.Reader, maxSize uint32) (*Packet, error) {
	header := make([]byte, PacketHeaderSize)
	n, err := io.ReadFull(reader, header)
	if err != nil {
		if n == 0 && err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	ptsFlags := binary.BigEndian.Uint64(header[0:8])
	packetSize := binary.BigEndian.Uint32(header[8:12])

	if packetSize == 0 {
		return nil, fmt.Errorf("invalid packet size: 0")
	}
	if packetSize > maxSize {
		return nil, fmt.Errorf("packet size too large: %d", packetSize)
	}

	data := make([]byte, packetSize)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("failed to read packet data: %w", err)
	}

	return &Packet{
		PTS:        ptsFlags & PacketPTSMask,
		Data:       data,
		IsKeyFrame: (ptsFlags & PacketFlagKeyFrame) != 0,
		IsConfig:   (ptsFlags & PacketFlagConfig) != 0,
	}, nil
}

// WritePacket writes one packet with its 12-byte header.
func WritePacket(w io.Writer, p *Packet) error {
	header := make([]byte, PacketHeaderSize)
	ptsFlags := p.PTS & PacketPTSMask
	if p.IsConfig {
		ptsFlags |= PacketFlagConfig
	}
	if p.IsKeyFrame {
		ptsFlags |= PacketFlagKeyFrame
	}
	binary.BigEndian.PutUint64(header[0:8], ptsFlags)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(p.Data)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(p.Data)
	return err
}

// ReadDeviceName reads the fixed-size device name field.
func ReadDeviceName(reader io.Reader) (string, error) {
	nameBytes := make([]byte, DeviceNameLength)
	if _, err := io.ReadFull(reader, nameBytes); err != nil {
		return "", fmt.Errorf("failed to read device name: %w", err)
	}
	return strings.TrimRight(string(nameBytes), "\x00"), nil
}

// WriteDeviceName writes name into the fixed-size device name field.
func WriteDeviceName(w io.Writer, name string) error {
	buf := make([]byte, DeviceNameLength)
	copy(buf[:DeviceNameLength-1], name)
	_, err := w.Write(buf)
	return err
}

// ReadStreamMeta reads the codec header: 4 bytes codec id, followed by
// width and height for video codecs.
func ReadStreamMeta(reader io.Reader) (*StreamMeta, error) {
	idBuf := make([]byte, 4)
	if _, err := io.ReadFull(reader, idBuf); err != nil {
		return nil, fmt.Errorf("failed to read codec id: %w", err)
	}
	meta := &StreamMeta{CodecID: binary.BigEndian.Uint32(idBuf)}
	if !IsVideoCodec(meta.CodecID) {
		return meta, nil
	}

	sizeBuf := make([]byte, 8)
	if _, err := io.ReadFull(reader, sizeBuf); err != nil {
		return nil, fmt.Errorf("failed to read video size: %w", err)
	}
	meta.Width = binary.BigEndian.Uint32(sizeBuf[0:4])
	meta.Height = binary.BigEndian.Uint32(sizeBuf[4:8])
	return meta, nil
}

// WriteStreamMeta writes the codec header read by ReadStreamMeta.
func WriteStreamMeta(w io.Writer, meta *StreamMeta) error {
	buf := binary.BigEndian.AppendUint32(nil, meta.CodecID)
	if IsVideoCodec(meta.CodecID) {
		buf = binary.BigEndian.AppendUint32(buf, meta.Width)
		buf = binary.BigEndian.AppendUint32(buf, meta.Height)
	}
	_, err := w.Write(buf)
	return err
}
