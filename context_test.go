package ed247

import (
	"fmt"
	"net"
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
	edtestutil "github.com/c360/ed247/testutil"
)

func loadPeers(t *testing.T, opts ...Option) (emitter, receiver *Context) {
	t.Helper()
	port := edtestutil.FreeUDPPort(t)

	receiver, err := LoadContent([]byte(edtestutil.PeerYAML(port, config.DirectionIn)))
	require.NoError(t, err)
	t.Cleanup(func() { receiver.Close() })

	emitter, err = LoadContent([]byte(edtestutil.PeerYAML(port, config.DirectionOut)), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { emitter.Close() })
	return emitter, receiver
}

func TestContext_Exchange(t *testing.T) {
	now := time.Unix(1700000000, 250)
	emitter, receiver := loadPeers(t, WithClock(func() time.Time { return now }))

	out, err := emitter.Stream("Label")
	require.NoError(t, err)
	for _, v := range []string{"0001", "0002", "0003"} {
		_, err := out.PushSample([]byte(v), nil)
		require.NoError(t, err)
	}

	var delivered int
	cbID, err := receiver.RegisterRecvCallback(func(*stream.Stream) error {
		delivered++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, emitter.SendPushedSamples())
	require.NoError(t, receiver.WaitFrame(2*time.Second))

	in, err := receiver.Stream("Label")
	require.NoError(t, err)
	require.Equal(t, 3, in.RecvStackSize())
	assert.Equal(t, 3, delivered)

	for i, want := range []string{"0001", "0002", "0003"} {
		sample, empty, err := in.PopSample()
		require.NoError(t, err)
		assert.Equal(t, want, string(sample.Bytes()))
		assert.Equal(t, i == 2, empty)
		assert.Equal(t, uint16(2), sample.Info.ComponentIdentifier)
		assert.Equal(t, uint16(0), sample.Info.SequenceNumber)
		assert.Equal(t, timestamp.FromTime(now), sample.Info.TransportTimestamp)
	}
	_, _, err = in.PopSample()
	assert.Equal(t, StatusNoData, StatusOf(err))

	assert.True(t, receiver.UnregisterRecvCallback(cbID))
	assert.False(t, receiver.UnregisterRecvCallback(cbID))
}

func TestContext_WaitStatuses(t *testing.T) {
	emitter, receiver := loadPeers(t)

	assert.Equal(t, StatusTimeout, StatusOf(receiver.WaitFrame(20*time.Millisecond)))
	assert.Equal(t, StatusNoData, StatusOf(receiver.WaitDuring(20*time.Millisecond)))

	// the emitter has no input socket: waiting only sleeps
	start := time.Now()
	assert.Equal(t, StatusTimeout, StatusOf(emitter.WaitFrame(20*time.Millisecond)))
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	out, _ := emitter.Stream("Label")
	_, err := out.PushSample([]byte("ABCD"), nil)
	require.NoError(t, err)
	require.NoError(t, emitter.SendPushedSamples())
	assert.Equal(t, StatusSuccess, StatusOf(receiver.WaitDuring(50*time.Millisecond)))
}

func TestContext_Lookup(t *testing.T) {
	ctx, err := LoadContent([]byte(edtestutil.LoopbackYAML(edtestutil.FreeUDPPort(t))))
	require.NoError(t, err)
	defer ctx.Close()

	assert.Equal(t, uint16(42), ctx.ComponentIdentifier())
	assert.Len(t, ctx.Channels(), 1)
	assert.Len(t, ctx.Streams(), 3)

	ch, err := ctx.Channel("Loop")
	require.NoError(t, err)
	assert.Equal(t, "Loop", ch.Name())

	_, err = ctx.Channel("Missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	_, err = ctx.Stream("Missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.Equal(t, StatusFailure, StatusOf(err))

	streams, err := ctx.FindStreams("^(Label|Console)$")
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.Equal(t, "Label", streams[0].Name())
	assert.Equal(t, "Loop", streams[0].ChannelName())

	channels, err := ctx.FindChannels(".*")
	require.NoError(t, err)
	assert.Len(t, channels, 1)

	signals, err := ctx.FindSignals("^Temp")
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "Sensors", signals[0].Stream().Name())

	_, err = ctx.FindStreams("(")
	assert.True(t, errors.IsInvalid(err))
}

func TestContext_LoopbackSignals(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	ctx, err := LoadContent([]byte(edtestutil.LoopbackYAML(edtestutil.FreeUDPPort(t))), WithMetrics(registry))
	require.NoError(t, err)
	defer ctx.Close()

	sensors, err := ctx.Stream("Sensors")
	require.NoError(t, err)
	a, err := sensors.Assistant()
	require.NoError(t, err)
	temperature, err := sensors.Signal("Temperature")
	require.NoError(t, err)
	pressure, err := sensors.Signal("Pressure")
	require.NoError(t, err)

	require.NoError(t, a.WriteFloat32(temperature, 21.5))
	require.NoError(t, a.WriteFloat32(pressure, 1013.25))
	_, err = a.Push(nil)
	require.NoError(t, err)

	var sentFrames, recvFrames int
	sendHook := ctx.RegisterComSendCallback(func(string, []byte) { sentFrames++ })
	ctx.RegisterComRecvCallback(func(string, []byte) { recvFrames++ })

	require.NoError(t, ctx.SendPushedSamples())
	require.NoError(t, ctx.WaitFrame(2*time.Second))
	assert.Equal(t, 1, sentFrames)
	assert.Equal(t, 1, recvFrames)

	_, empty, err := a.Pop()
	require.NoError(t, err)
	assert.True(t, empty)
	got, err := a.ReadFloat32(temperature)
	require.NoError(t, err)
	assert.Equal(t, float32(21.5), got)
	got, err = a.ReadFloat32(pressure)
	require.NoError(t, err)
	assert.Equal(t, float32(1013.25), got)

	core := registry.CoreMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(core.FramesSent.WithLabelValues("Loop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.FramesReceived.WithLabelValues("Loop")))

	assert.True(t, ctx.UnregisterComCallback(sendHook))
	assert.False(t, ctx.UnregisterComCallback(sendHook))
}

func TestContext_StrictSignals(t *testing.T) {
	ctx, err := LoadContent([]byte(edtestutil.LoopbackYAML(edtestutil.FreeUDPPort(t))), WithStrictSignals())
	require.NoError(t, err)
	defer ctx.Close()

	sensors, _ := ctx.Stream("Sensors")
	a, _ := sensors.Assistant()
	temperature, _ := sensors.Signal("Temperature")
	require.NoError(t, a.WriteFloat32(temperature, 1))

	_, err = a.Push(nil)
	assert.Error(t, err, "pressure was never written")
}

func TestContext_LoadFailures(t *testing.T) {
	t.Run("invalid configuration", func(t *testing.T) {
		_, err := LoadContent([]byte("component_identifier: 1\nname: empty\nchannels: []\n"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile("/nonexistent/component.yaml")
		assert.True(t, errors.Is(err, errors.ErrMissingConfig))
	})

	t.Run("nil configuration", func(t *testing.T) {
		_, err := Load(nil)
		assert.True(t, errors.Is(err, errors.ErrMissingConfig))
	})

	t.Run("address in use", func(t *testing.T) {
		busy, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		require.NoError(t, err)
		defer busy.Close()
		port := busy.LocalAddr().(*net.UDPAddr).Port

		_, err = LoadContent([]byte(edtestutil.LoopbackYAML(port)))
		require.Error(t, err)
		assert.True(t, errors.IsFatal(err))
		assert.True(t, errors.Is(err, errors.ErrSocket))
	})
}

func TestContext_ReloadWithSharedRegistry(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	content := []byte(edtestutil.LoopbackYAML(edtestutil.FreeUDPPort(t)))

	first, err := LoadContent(content, WithMetrics(registry))
	require.NoError(t, err)
	assert.Len(t, registry.Scopes(), 6, "a send and a receive ring per stream")
	require.NoError(t, first.Close())
	assert.Empty(t, registry.Scopes())

	second, err := LoadContent(content, WithMetrics(registry))
	require.NoError(t, err)
	defer second.Close()
	assert.NotEqual(t, first.MetricsScope(), second.MetricsScope())
	assert.Len(t, registry.Scopes(), 6)
}

func TestContext_SharedRegistrySameNames(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	a, err := LoadContent([]byte(edtestutil.PeerYAML(edtestutil.FreeUDPPort(t), config.DirectionIn)), WithMetrics(registry))
	require.NoError(t, err)
	defer a.Close()
	b, err := LoadContent([]byte(edtestutil.PeerYAML(edtestutil.FreeUDPPort(t), config.DirectionIn)), WithMetrics(registry))
	require.NoError(t, err)
	defer b.Close()

	assert.ElementsMatch(t, []string{
		a.MetricsScope() + "/Label_recv",
		b.MetricsScope() + "/Label_recv",
	}, registry.Scopes())
}

func TestContext_LoadFailureReleasesMetrics(t *testing.T) {
	busy, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer busy.Close()
	port := busy.LocalAddr().(*net.UDPAddr).Port

	registry := metric.NewMetricsRegistry()
	_, err = LoadContent([]byte(edtestutil.LoopbackYAML(port)), WithMetrics(registry))
	require.Error(t, err)
	assert.Empty(t, registry.Scopes())

	require.NoError(t, busy.Close())
	ctx, err := LoadContent([]byte(edtestutil.LoopbackYAML(port)), WithMetrics(registry))
	require.NoError(t, err)
	defer ctx.Close()
	assert.Len(t, registry.Scopes(), 6)
}

func TestContext_WaitForeverWithoutInput(t *testing.T) {
	emitter, err := LoadContent([]byte(edtestutil.PeerYAML(edtestutil.FreeUDPPort(t), config.DirectionOut)))
	require.NoError(t, err)
	defer emitter.Close()

	start := time.Now()
	assert.Equal(t, StatusTimeout, StatusOf(emitter.WaitFrame(-1)))
	assert.Less(t, time.Since(start), time.Second)
}

func TestContext_Closed(t *testing.T) {
	ctx, err := LoadContent([]byte(edtestutil.LoopbackYAML(edtestutil.FreeUDPPort(t))))
	require.NoError(t, err)
	require.NoError(t, ctx.Close())
	require.NoError(t, ctx.Close())

	assert.True(t, errors.Is(ctx.WaitFrame(time.Millisecond), errors.ErrClosed))
	assert.True(t, errors.Is(ctx.WaitDuring(time.Millisecond), errors.ErrClosed))
	assert.True(t, errors.Is(ctx.SendPushedSamples(), errors.ErrClosed))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusSuccess},
		{errors.WrapTransient(errors.ErrTimeout, "x", "y", "z"), StatusTimeout},
		{fmt.Errorf("wrapped: %w", errors.ErrNoData), StatusNoData},
		{errors.ErrSocket, StatusFailure},
		{fmt.Errorf("anything"), StatusFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), "%v", tt.err)
	}
	assert.Equal(t, "TIMEOUT", StatusTimeout.String())
}
