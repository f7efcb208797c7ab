package channel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ed247/config"
	"github.com/c360/ed247/errors"
	"github.com/c360/ed247/metric"
	"github.com/c360/ed247/pkg/timestamp"
	"github.com/c360/ed247/stream"
)

type captureSender struct {
	frames [][]byte
	err    error
}

func (c *captureSender) SendFrame(frame []byte) error {
	c.frames = append(c.frames, append([]byte{}, frame...))
	return c.err
}

func buildChannel(t *testing.T, cc config.ChannelConfig, componentID uint16, opts ...Option) *Channel {
	t.Helper()
	cc.ComInterface = config.ComInterfaceConfig{UDPSockets: []config.UDPSocketConfig{
		{DstIP: "127.0.0.1", DstPort: 2589},
	}}
	cfg := &config.Config{ComponentIdentifier: componentID, Name: "test", Channels: []config.ChannelConfig{cc}}
	require.NoError(t, cfg.Validate())

	validated := cfg.Channels[0]
	streams := make([]*stream.Stream, 0, len(validated.Streams))
	for _, sc := range validated.Streams {
		s, err := stream.New(sc, stream.WithChannel(validated.Name))
		require.NoError(t, err)
		streams = append(streams, s)
	}
	ch, err := New(validated, componentID, streams, opts...)
	require.NoError(t, err)
	return ch
}

func mustStream(t *testing.T, ch *Channel, uid uint16) *stream.Stream {
	t.Helper()
	s, ok := ch.Stream(uid)
	require.True(t, ok)
	return s
}

func TestChannel_FrameWithHeader(t *testing.T) {
	ch := buildChannel(t, config.ChannelConfig{
		Name:   "Channel0",
		Header: config.HeaderConfig{Enable: true},
		Streams: []config.StreamConfig{
			{Name: "S1", UID: 1, Type: config.StreamA429, Direction: config.DirectionOut},
			{Name: "S2", UID: 2, Type: config.StreamA825, Direction: config.DirectionOut, SampleMaxSizeBytes: 8},
		},
	}, 0x1234)

	_, err := mustStream(t, ch, 1).PushSample([]byte("AAAA"), nil)
	require.NoError(t, err)
	_, err = mustStream(t, ch, 2).PushSample([]byte("B"), nil)
	require.NoError(t, err)

	frame, err := ch.Encode()
	require.NoError(t, err)

	assert.Equal(t, uint16(0x1234), binary.BigEndian.Uint16(frame[0:2]))
	assert.Equal(t, uint16(0), binary.BigEndian.Uint16(frame[2:4]))
	assert.Equal(t, uint16(1), binary.BigEndian.Uint16(frame[4:6]))
	assert.Equal(t, uint16(4), binary.BigEndian.Uint16(frame[6:8]))
	assert.Equal(t, []byte("AAAA"), frame[8:12])
	assert.Equal(t, uint16(2), binary.BigEndian.Uint16(frame[12:14]))
	assert.Equal(t, uint16(1+1), binary.BigEndian.Uint16(frame[14:16]))
	assert.Equal(t, []byte{1, 'B'}, frame[16:18])
	assert.Len(t, frame, 18)

	// nothing pending: nothing is sent and the sequence number is kept
	frame, err = ch.Encode()
	require.NoError(t, err)
	assert.Empty(t, frame)
	assert.Equal(t, uint16(1), ch.Header().NextSequence())
}

func TestChannel_TransportTimestamp(t *testing.T) {
	clock := func() time.Time { return time.Unix(1700000000, 5) }
	out := buildChannel(t, config.ChannelConfig{
		Name:   "Channel0",
		Header: config.HeaderConfig{Enable: true, TransportTimestamp: true},
		Streams: []config.StreamConfig{
			{Name: "S1", UID: 1, Type: config.StreamA429, Direction: config.DirectionInOut},
		},
	}, 7, WithClock(clock))

	s := mustStream(t, out, 1)
	_, err := s.PushSample([]byte("abcd"), nil)
	require.NoError(t, err)
	frame, err := out.Encode()
	require.NoError(t, err)
	require.Len(t, frame, 12+4+4)
	assert.Equal(t, timestamp.Timestamp{EpochS: 1700000000, OffsetNs: 5}, timestamp.Read(frame[4:]))

	require.NoError(t, out.Decode(frame))
	sample, _, err := s.PopSample()
	require.NoError(t, err)
	assert.Equal(t, uint16(7), sample.Info.ComponentIdentifier)
	assert.Equal(t, uint16(0), sample.Info.SequenceNumber)
	assert.Equal(t, timestamp.Timestamp{EpochS: 1700000000, OffsetNs: 5}, sample.Info.TransportTimestamp)
}

func TestChannel_UnknownUIDTolerance(t *testing.T) {
	ch := buildChannel(t, config.ChannelConfig{
		Name: "Channel0",
		Streams: []config.StreamConfig{
			{Name: "S1", UID: 1, Type: config.StreamA429, Direction: config.DirectionIn},
		},
	}, 1)

	var frame bytes.Buffer
	_ = binary.Write(&frame, binary.BigEndian, []uint16{9, 4})
	frame.WriteString("XXXX")
	_ = binary.Write(&frame, binary.BigEndian, []uint16{1, 4})
	frame.WriteString("AAAA")

	require.NoError(t, ch.Decode(frame.Bytes()))
	s := mustStream(t, ch, 1)
	require.Equal(t, 1, s.RecvStackSize())
	sample, _, err := s.PopSample()
	require.NoError(t, err)
	assert.Equal(t, "AAAA", string(sample.Bytes()))
}

func TestChannel_SiblingStreamsSurviveDecodeError(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	ch := buildChannel(t, config.ChannelConfig{
		Name: "Channel0",
		Streams: []config.StreamConfig{
			{Name: "S1", UID: 1, Type: config.StreamA429, Direction: config.DirectionIn},
			{Name: "S2", UID: 2, Type: config.StreamA429, Direction: config.DirectionIn},
		},
	}, 1, WithMetrics(registry.CoreMetrics()))

	var frame bytes.Buffer
	// 3 bytes is not a valid A429 payload
	_ = binary.Write(&frame, binary.BigEndian, []uint16{1, 3})
	frame.WriteString("bad")
	_ = binary.Write(&frame, binary.BigEndian, []uint16{2, 4})
	frame.WriteString("good")

	require.NoError(t, ch.Decode(frame.Bytes()))
	assert.Equal(t, 0, mustStream(t, ch, 1).RecvStackSize())
	assert.Equal(t, 1, mustStream(t, ch, 2).RecvStackSize())
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().DecodeErrors.WithLabelValues("Channel0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().FramesReceived.WithLabelValues("Channel0")))
}

func TestChannel_MalformedFrames(t *testing.T) {
	ch := buildChannel(t, config.ChannelConfig{
		Name:   "Channel0",
		Header: config.HeaderConfig{Enable: true},
		Streams: []config.StreamConfig{
			{Name: "S1", UID: 1, Type: config.StreamA429, Direction: config.DirectionIn},
		},
	}, 1)

	tests := []struct {
		name  string
		frame []byte
	}{
		{"shorter than header", []byte{0, 1, 0}},
		{"truncated block header", []byte{0, 1, 0, 0, 0, 1}},
		{"block larger than frame", []byte{0, 1, 0, 1, 0, 1, 0, 8, 'a', 'b'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ch.Decode(tt.frame)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrTruncated))
		})
	}
}

func TestChannel_MissedFrames(t *testing.T) {
	header := NewFrameHeader(config.HeaderConfig{Enable: true}, 1)
	frame := make([]byte, 4)

	for _, seq := range []uint16{0xFFFD, 0xFFFE, 1, 2, 0, 3} {
		binary.BigEndian.PutUint16(frame[0:2], 9)
		binary.BigEndian.PutUint16(frame[2:4], seq)
		_, err := header.Decode(frame)
		require.NoError(t, err)
	}
	// 0xFFFE->1 loses 0xFFFF and 0, 2->0 is a replay, 0->3 loses 1 and 2
	assert.Equal(t, uint64(4), header.MissedFrames())
	assert.Equal(t, uint16(3), header.Last().SequenceNumber)
	assert.Equal(t, uint16(9), header.Last().ComponentIdentifier)

	// another sender has its own sequence
	binary.BigEndian.PutUint16(frame[0:2], 10)
	binary.BigEndian.PutUint16(frame[2:4], 500)
	_, err := header.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), header.MissedFrames())
}

func TestFrameHeader_SequenceWraps(t *testing.T) {
	header := NewFrameHeader(config.HeaderConfig{Enable: true}, 1)
	header.nextSequence = 0xFFFF
	header.Commit()
	assert.Equal(t, uint16(0), header.NextSequence())
}

func TestChannel_SimpleChannel(t *testing.T) {
	ch := buildChannel(t, config.ChannelConfig{
		Name:   "Simple",
		Simple: true,
		Streams: []config.StreamConfig{
			{Name: "Serial", UID: 5, Type: config.StreamSerial, Direction: config.DirectionInOut,
				SampleMaxSizeBytes: 16, SampleMaxNumber: 2},
		},
	}, 1)
	s := mustStream(t, ch, 5)

	_, err := s.PushSamples([][]byte{[]byte("hi"), []byte("there")}, nil)
	require.NoError(t, err)
	frame, err := ch.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte("\x02hi\x05there"), frame)

	require.NoError(t, ch.Decode(frame))
	assert.Equal(t, 2, s.RecvStackSize())
}

func TestChannel_SendDrainsAllStacks(t *testing.T) {
	out := buildChannel(t, config.ChannelConfig{
		Name:         "Small",
		Header:       config.HeaderConfig{Enable: true},
		FrameMaxSize: 64,
		Streams: []config.StreamConfig{
			{Name: "A", UID: 1, Type: config.StreamA429, Direction: config.DirectionOut, SampleMaxNumber: 20},
			{Name: "B", UID: 2, Type: config.StreamSerial, Direction: config.DirectionOut,
				SampleMaxSizeBytes: 20, SampleMaxNumber: 10},
		},
	}, 1)
	assert.Equal(t, 64, out.BufferSize())

	sender := &captureSender{}
	out.AddSender(sender)

	a := mustStream(t, out, 1)
	b := mustStream(t, out, 2)
	for i := 0; i < 20; i++ {
		_, err := a.PushSample([]byte(fmt.Sprintf("%04d", i)), nil)
		require.NoError(t, err)
	}
	for i := 0; i < 10; i++ {
		_, err := b.PushSample(bytes.Repeat([]byte{byte('a' + i)}, 20), nil)
		require.NoError(t, err)
	}

	require.NoError(t, out.EncodeAndSend())
	assert.Equal(t, 0, a.SendStackSize())
	assert.Equal(t, 0, b.SendStackSize())
	assert.Greater(t, len(sender.frames), 1)

	in := buildChannel(t, config.ChannelConfig{
		Name: "Small",
		Streams: []config.StreamConfig{
			{Name: "A", UID: 1, Type: config.StreamA429, Direction: config.DirectionIn, SampleMaxNumber: 20},
			{Name: "B", UID: 2, Type: config.StreamSerial, Direction: config.DirectionIn,
				SampleMaxSizeBytes: 20, SampleMaxNumber: 10},
		},
		Header: config.HeaderConfig{Enable: true},
	}, 2)
	for i, frame := range sender.frames {
		assert.LessOrEqual(t, len(frame), 64)
		assert.Equal(t, uint16(i), binary.BigEndian.Uint16(frame[2:4]))
		require.NoError(t, in.Decode(frame))
	}
	assert.Equal(t, 20, mustStream(t, in, 1).RecvStackSize())
	assert.Equal(t, 10, mustStream(t, in, 2).RecvStackSize())
	assert.Zero(t, in.MissedFrames())

	first, _, err := mustStream(t, in, 1).PopSample()
	require.NoError(t, err)
	assert.Equal(t, "0000", string(first.Bytes()))
}

func TestChannel_SendReportsErrors(t *testing.T) {
	ch := buildChannel(t, config.ChannelConfig{
		Name: "Channel0",
		Streams: []config.StreamConfig{
			{Name: "S1", UID: 1, Type: config.StreamA429, Direction: config.DirectionOut},
		},
	}, 1)
	failing := &captureSender{err: fmt.Errorf("network unreachable")}
	working := &captureSender{}
	ch.AddSender(failing)
	ch.AddSender(working)

	_, err := mustStream(t, ch, 1).PushSample([]byte("abcd"), nil)
	require.NoError(t, err)
	assert.Error(t, ch.EncodeAndSend())
	assert.Len(t, working.frames, 1, "every route is attempted")
	assert.False(t, ch.HasSamplesToSend())
}
