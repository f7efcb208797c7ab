package bridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/c360/ed247/stream"
)

// SampleEvent is the JSON document published for every received sample.
// Data is base64 encoded by encoding/json.
type SampleEvent struct {
	ID                  string    `json:"id"`
	Channel             string    `json:"channel"`
	Stream              string    `json:"stream"`
	UID                 uint16    `json:"uid"`
	Type                string    `json:"type"`
	Data                []byte    `json:"data"`
	DataTimestamp       time.Time `json:"data_timestamp"`
	RecvTimestamp       time.Time `json:"recv_timestamp"`
	ComponentIdentifier uint16    `json:"component_identifier"`
	SequenceNumber      uint16    `json:"sequence_number"`
}

// NewSampleEvent copies a popped sample into an event with a fresh id.
// The sample belongs to the receive stack and is only read here.
func NewSampleEvent(s *stream.Stream, sample *stream.StreamSample) *SampleEvent {
	return &SampleEvent{
		ID:                  uuid.NewString(),
		Channel:             s.ChannelName(),
		Stream:              s.Name(),
		UID:                 s.UID(),
		Type:                s.Type().String(),
		Data:                append([]byte(nil), sample.Bytes()...),
		DataTimestamp:       sample.DataTimestamp.Time(),
		RecvTimestamp:       sample.RecvTimestamp.Time(),
		ComponentIdentifier: sample.Info.ComponentIdentifier,
		SequenceNumber:      sample.Info.SequenceNumber,
	}
}
