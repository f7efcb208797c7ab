package testutil

import (
	"sync"

	"github.com/nats-io/nats.go"
)

// MockNATSConn records published messages and hands out the channel
// subscriptions, standing in for *nats.Conn without a server.
type MockNATSConn struct {
	mu        sync.Mutex
	published []*nats.Msg
	subs      map[string]chan *nats.Msg
	err       error
}

// NewMockNATSConn creates an empty mock connection
func NewMockNATSConn() *MockNATSConn {
	return &MockNATSConn{subs: make(map[string]chan *nats.Msg)}
}

// FailWith makes every later publish return err
func (m *MockNATSConn) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// PublishMsg records the message
func (m *MockNATSConn) PublishMsg(msg *nats.Msg) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, msg)
	return nil
}

// ChanSubscribe records the delivery channel of subject. The returned
// subscription is nil.
func (m *MockNATSConn) ChanSubscribe(subject string, ch chan *nats.Msg) (*nats.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[subject] = ch
	return nil, nil
}

// Published returns a copy of the published messages
func (m *MockNATSConn) Published() []*nats.Msg {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*nats.Msg, len(m.published))
	copy(out, m.published)
	return out
}

// Deliver sends a message to the subscription registered on subject.
// It reports false when nothing subscribed yet.
func (m *MockNATSConn) Deliver(subject string, msg *nats.Msg) bool {
	m.mu.Lock()
	ch, ok := m.subs[subject]
	m.mu.Unlock()
	if !ok {
		return false
	}
	ch <- msg
	return true
}
