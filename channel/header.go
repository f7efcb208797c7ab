package channel

import (
	"encoding/binary"
	"fmt"

	"github.com/c360/ed247/config"
	"github.com/c360/ed247/errors"
	"github.com/c360/ed247/pkg/timestamp"
	"github.com/c360/ed247/stream"
)

// Frame header layout
const (
	headerBaseSize = 4
	headerTTSSize  = timestamp.Size
)

// FrameHeader encodes and decodes the optional header of channel frames.
//
// On encode it stamps the component identifier and the next sequence number.
// On decode it records the sender metadata and counts sequence gaps per
// sender component as missed frames.
type FrameHeader struct {
	enable             bool
	transportTimestamp bool
	componentID        uint16
	nextSequence       uint16

	last     stream.SampleInfo
	expected map[uint16]uint16
	missed   uint64
}

// NewFrameHeader creates the header of a channel
func NewFrameHeader(cfg config.HeaderConfig, componentID uint16) *FrameHeader {
	return &FrameHeader{
		enable:             cfg.Enable,
		transportTimestamp: cfg.Enable && cfg.TransportTimestamp,
		componentID:        componentID,
		expected:           make(map[uint16]uint16),
	}
}

// Enabled reports whether frames carry a header
func (h *FrameHeader) Enabled() bool { return h.enable }

// Size returns the encoded header size
func (h *FrameHeader) Size() int {
	switch {
	case !h.enable:
		return 0
	case h.transportTimestamp:
		return headerBaseSize + headerTTSSize
	default:
		return headerBaseSize
	}
}

// NextSequence returns the sequence number of the next encoded frame
func (h *FrameHeader) NextSequence() uint16 { return h.nextSequence }

// Encode writes the header with the next sequence number into dst.
// The sequence number is only consumed by Commit.
func (h *FrameHeader) Encode(dst []byte, now timestamp.Timestamp) (int, error) {
	size := h.Size()
	if size == 0 {
		return 0, nil
	}
	if len(dst) < size {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: header needs %d bytes, %d available", errors.ErrBufferTooSmall, size, len(dst)),
			"FrameHeader", "Encode", "encode header")
	}
	binary.BigEndian.PutUint16(dst[0:2], h.componentID)
	binary.BigEndian.PutUint16(dst[2:4], h.nextSequence)
	if h.transportTimestamp {
		now.Put(dst[headerBaseSize:])
	}
	return size, nil
}

// Commit consumes the sequence number of a frame that was actually emitted.
// The sequence number wraps at 65535.
func (h *FrameHeader) Commit() {
	h.nextSequence++
}

// Decode parses the header at the start of src and returns its size.
// A frame too short for the header is rejected.
func (h *FrameHeader) Decode(src []byte) (int, error) {
	size := h.Size()
	if size == 0 {
		h.last = stream.SampleInfo{}
		return 0, nil
	}
	if len(src) < size {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: frame of %d bytes is shorter than the %d bytes header", errors.ErrTruncated, len(src), size),
			"FrameHeader", "Decode", "decode header")
	}

	info := stream.SampleInfo{
		ComponentIdentifier: binary.BigEndian.Uint16(src[0:2]),
		SequenceNumber:      binary.BigEndian.Uint16(src[2:4]),
	}
	if h.transportTimestamp {
		info.TransportTimestamp = timestamp.Read(src[headerBaseSize:])
	}

	if expected, seen := h.expected[info.ComponentIdentifier]; seen {
		// gaps beyond half the sequence space are reordered or replayed frames
		if gap := info.SequenceNumber - expected; gap != 0 && gap < 0x8000 {
			h.missed += uint64(gap)
		}
	}
	h.expected[info.ComponentIdentifier] = info.SequenceNumber + 1
	h.last = info
	return size, nil
}

// Last returns the metadata of the last decoded header
func (h *FrameHeader) Last() stream.SampleInfo { return h.last }

// MissedFrames returns the number of frames detected as lost
func (h *FrameHeader) MissedFrames() uint64 { return h.missed }
