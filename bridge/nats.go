package bridge

import (
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/c360/ed247/errors"
)

// Subject layout: <prefix>.in.<stream> for received samples,
// <prefix>.out.<stream> for samples to emit.
const (
	inSegment  = ".in."
	outSegment = ".out."
)

// NATSPublisher is the part of *nats.Conn the sink uses
type NATSPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// NATSSubscriber is the part of *nats.Conn the inbound path uses
type NATSSubscriber interface {
	ChanSubscribe(subject string, ch chan *nats.Msg) (*nats.Subscription, error)
}

// NATSSink publishes sample events on <prefix>.in.<stream>. The event id is
// set as Nats-Msg-Id so JetStream consumers can drop duplicates.
type NATSSink struct {
	conn   NATSPublisher
	prefix string
}

// NewNATSSink creates a sink publishing under prefix
func NewNATSSink(conn NATSPublisher, prefix string) *NATSSink {
	return &NATSSink{conn: conn, prefix: prefix}
}

// Name returns the sink name used in metrics
func (s *NATSSink) Name() string { return "nats" }

// Publish sends one encoded event
func (s *NATSSink) Publish(ev *SampleEvent, payload []byte) error {
	msg := nats.NewMsg(InSubject(s.prefix, ev.Stream))
	msg.Header.Set(nats.MsgIdHdr, ev.ID)
	msg.Data = payload
	if err := s.conn.PublishMsg(msg); err != nil {
		return errors.WrapTransient(err, "NATSSink", "Publish", "publish "+msg.Subject)
	}
	return nil
}

// InSubject returns the subject received samples of a stream are published on
func InSubject(prefix, streamName string) string {
	return prefix + inSegment + streamName
}

// OutSubject returns the subject samples to emit on a stream are read from
func OutSubject(prefix, streamName string) string {
	return prefix + outSegment + streamName
}

// streamFromOutSubject extracts the stream name of an outbound subject
func streamFromOutSubject(prefix, subject string) (string, error) {
	name, ok := strings.CutPrefix(subject, prefix+outSegment)
	if !ok || name == "" {
		return "", errors.WrapInvalid(fmt.Errorf("%w: subject %q", errors.ErrInvalidData, subject),
			"Bridge", "handleOutbound", "parse subject")
	}
	return name, nil
}
