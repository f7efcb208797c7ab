package stream

import (
	"github.com/c360/ed247/pkg/buffer"
	"github.com/c360/ed247/pkg/timestamp"
)

// SampleInfo is the frame header metadata attached to a received sample.
// It is zero when the channel has no header.
type SampleInfo struct {
	ComponentIdentifier uint16
	SequenceNumber      uint16
	TransportTimestamp  timestamp.Timestamp
}

// StreamSample is a send or receive stack slot: the sample bytes plus their
// data timestamp, reception timestamp and header metadata.
type StreamSample struct {
	buffer.Sample
	DataTimestamp timestamp.Timestamp
	RecvTimestamp timestamp.Timestamp
	Info          SampleInfo
}

func newStreamSample(capacity int) func() *StreamSample {
	return func() *StreamSample {
		s := &StreamSample{}
		// capacity is validated by the configuration, Allocate cannot fail here
		_ = s.Allocate(capacity)
		return s
	}
}

func (s *StreamSample) reset() {
	s.Sample.Reset()
	s.DataTimestamp = timestamp.Timestamp{}
	s.RecvTimestamp = timestamp.Timestamp{}
	s.Info = SampleInfo{}
}
