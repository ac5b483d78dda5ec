// Package flv serialises FLV tag bodies and the FLV byte stream framing.
package flv

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Tag types
const (
	TagTypeAudio = uint8(8)
	TagTypeVideo = uint8(9)
)

const (
	// TagHeaderSize is the size of the header in front of every tag body.
	TagHeaderSize = 11

	// FileHeaderSize covers the signature header and PreviousTagSize0.
	FileHeaderSize = 13

	maxDataSize = 1<<24 - 1
)

// Tag is one decoded FLV tag.
type Tag struct {
	Type      uint8
	Timestamp uint32 // Milliseconds, extended byte included
	Data      []byte
}

// FileHeader returns the FLV signature header followed by PreviousTagSize0.
func FileHeader(hasAudio, hasVideo bool) []byte {
	var flags byte
	if hasAudio {
		flags |= 0x04
	}
	if hasVideo {
		flags |= 0x01
	}
	return []byte{
		'F', 'L', 'V', 0x01, flags,
		0x00, 0x00, 0x00, 0x09, // data offset
		0x00, 0x00, 0x00, 0x00, // PreviousTagSize0
	}
}

// AppendTag appends one tag (header, body, PreviousTagSize) to buf.
func AppendTag(buf []byte, tagType uint8, timestamp uint32, data []byte) ([]byte, error) {
	dataSize := len(data)
	if dataSize > maxDataSize {
		return buf, fmt.Errorf("flv tag body too large: %d bytes", dataSize)
	}

	buf = append(buf,
		tagType,
		byte(dataSize>>16),
		byte(dataSize>>8),
		byte(dataSize),
		byte(timestamp>>16),
		byte(timestamp>>8),
		byte(timestamp),
		byte(timestamp>>24), // TimestampExtended
		0x00, 0x00, 0x00, // StreamID
	)
	buf = append(buf, data...)
	return binary.BigEndian.AppendUint32(buf, uint32(TagHeaderSize+dataSize)), nil
}

// ReadFileHeader consumes the file header and PreviousTagSize0.
func ReadFileHeader(r io.Reader) (hasAudio, hasVideo bool, err error) {
	var hdr [FileHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return false, false, fmt.Errorf("failed to read flv header: %w", err)
	}
	if hdr[0] != 'F' || hdr[1] != 'L' || hdr[2] != 'V' {
		return false, false, fmt.Errorf("invalid flv signature")
	}
	if offset := binary.BigEndian.Uint32(hdr[5:9]); offset != 9 {
		return false, false, fmt.Errorf("unsupported flv header size %d", offset)
	}
	return hdr[4]&0x04 != 0, hdr[4]&0x01 != 0, nil
}

// ReadTag reads one tag and checks its PreviousTagSize.
func ReadTag(r io.Reader) (*Tag, error) {
	var hdr [TagHeaderSize]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if n == 0 && err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read tag header: %w", err)
	}

	dataSize := int(hdr[1])<<16 | int(hdr[2])<<8 | int(hdr[3])
	ts := uint32(hdr[7])<<24 | uint32(hdr[4])<<16 | uint32(hdr[5])<<8 | uint32(hdr[6])

	data := make([]byte, dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read tag body: %w", err)
	}

	var prev [4]byte
	if _, err := io.ReadFull(r, prev[:]); err != nil {
		return nil, fmt.Errorf("failed to read previous tag size: %w", err)
	}
	if got := binary.BigEndian.Uint32(prev[:]); got != uint32(TagHeaderSize+dataSize) {
		return nil, fmt.Errorf("previous tag size mismatch: %d != %d", got, TagHeaderSize+dataSize)
	}

	return &Tag{Type: hdr[0], Timestamp: ts, Data: data}, nil
}
