package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ed247"
	"github.com/c360/ed247/errors"
	"github.com/c360/ed247/metric"
	edtestutil "github.com/c360/ed247/testutil"
)

type captureSink struct {
	mu     sync.Mutex
	events []*SampleEvent
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Publish(ev *SampleEvent, _ []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func loopbackContext(t *testing.T, opts ...ed247.Option) *ed247.Context {
	t.Helper()
	ctx, err := ed247.LoadContent([]byte(edtestutil.LoopbackYAML(edtestutil.FreeUDPPort(t))), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close() })
	return ctx
}

func TestBridge_Forward(t *testing.T) {
	ed := loopbackContext(t)
	sink := &captureSink{}
	conn := edtestutil.NewMockNATSConn()
	registry := metric.NewMetricsRegistry()

	b, err := New(ed, Config{Streams: "^(Label|Console)$"},
		WithSink(sink), WithSink(NewNATSSink(conn, "avionics")), WithMetrics(registry.CoreMetrics()))
	require.NoError(t, err)
	assert.Len(t, b.Inputs(), 2)

	label, err := ed.Stream("Label")
	require.NoError(t, err)
	_, err = label.PushSample([]byte("ABCD"), nil)
	require.NoError(t, err)
	sensors, err := ed.Stream("Sensors")
	require.NoError(t, err)
	_, err = sensors.PushSample(make([]byte, 8), nil)
	require.NoError(t, err)

	require.NoError(t, ed.SendPushedSamples())
	require.NoError(t, ed.WaitFrame(2*time.Second))

	assert.Equal(t, 1, b.Forward())
	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, "Loop", ev.Channel)
	assert.Equal(t, "Label", ev.Stream)
	assert.Equal(t, uint16(1), ev.UID)
	assert.Equal(t, "A429", ev.Type)
	assert.Equal(t, []byte("ABCD"), ev.Data)
	assert.Equal(t, uint16(42), ev.ComponentIdentifier)
	assert.NotEmpty(t, ev.ID)

	published := conn.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "avionics.in.Label", published[0].Subject)
	assert.Equal(t, ev.ID, published[0].Header.Get(nats.MsgIdHdr))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(published[0].Data, &decoded))
	assert.Equal(t, "QUJDRA==", decoded["data"])

	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().SamplesForwarded.WithLabelValues("Label", "nats")))
	assert.Equal(t, 1, sensors.RecvStackSize(), "streams outside the pattern are left alone")
}

func TestBridge_SinkFailureIsCounted(t *testing.T) {
	ed := loopbackContext(t)
	conn := edtestutil.NewMockNATSConn()
	conn.FailWith(fmt.Errorf("nats: connection closed"))
	registry := metric.NewMetricsRegistry()

	b, err := New(ed, Config{}, WithSink(NewNATSSink(conn, "ed247")), WithMetrics(registry.CoreMetrics()))
	require.NoError(t, err)

	label, _ := ed.Stream("Label")
	_, err = label.PushSample([]byte("ABCD"), nil)
	require.NoError(t, err)
	require.NoError(t, ed.SendPushedSamples())
	require.NoError(t, ed.WaitFrame(2*time.Second))

	assert.Equal(t, 1, b.Forward())
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().BridgeErrors.WithLabelValues("nats")))
}

func TestBridge_RunRoundTrip(t *testing.T) {
	ed := loopbackContext(t)
	conn := edtestutil.NewMockNATSConn()
	b, err := New(ed, Config{SubjectPrefix: "ed247", Streams: "^Label$", WaitTimeout: 10 * time.Millisecond},
		WithSink(NewNATSSink(conn, "ed247")), WithNATSInput(conn))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	msg := &nats.Msg{Subject: OutSubject("ed247", "Label"), Data: []byte("WXYZ")}
	require.Eventually(t, func() bool {
		return conn.Deliver("ed247.out.>", msg)
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(conn.Published()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	var ev SampleEvent
	require.NoError(t, json.Unmarshal(conn.Published()[0].Data, &ev))
	assert.Equal(t, []byte("WXYZ"), ev.Data)
	assert.Equal(t, "Label", ev.Stream)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
	assert.NoError(t, b.Health())
}

func TestBridge_HandleOutboundErrors(t *testing.T) {
	ed := loopbackContext(t)
	b, err := New(ed, Config{SubjectPrefix: "ed247"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		subject string
		data    []byte
		target  error
	}{
		{"foreign subject", "other.out.Label", []byte("ABCD"), errors.ErrInvalidData},
		{"missing stream name", "ed247.out.", []byte("ABCD"), errors.ErrInvalidData},
		{"unknown stream", "ed247.out.Nope", []byte("ABCD"), errors.ErrNotFound},
		{"wrong size", "ed247.out.Label", []byte("ABC"), errors.ErrSampleSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.handleOutbound(&nats.Msg{Subject: tt.subject, Data: tt.data})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "%v", err)
		})
	}
}

func TestBridge_BadPattern(t *testing.T) {
	_, err := New(loopbackContext(t), Config{Streams: "("})
	assert.True(t, errors.IsInvalid(err))
}

func TestWebSocketHub_Broadcast(t *testing.T) {
	hub := NewWebSocketHub(nil, nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	payload := []byte(`{"stream":"Label"}`)
	require.NoError(t, hub.Publish(&SampleEvent{Stream: "Label"}, payload))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, payload, data)

	require.NoError(t, client.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "ed247.in.Label", InSubject("ed247", "Label"))
	assert.Equal(t, "ed247.out.Label", OutSubject("ed247", "Label"))

	name, err := streamFromOutSubject("ed247", "ed247.out.Label")
	require.NoError(t, err)
	assert.Equal(t, "Label", name)
}
