package ed247

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ed247/metric"
	edtestutil "github.com/c360/ed247/testutil"
)

// rawFrame builds a Loop channel frame carrying one Label sample
func rawFrame(component, sequence uint16, sample string) []byte {
	frame := make([]byte, 8, 8+len(sample))
	binary.BigEndian.PutUint16(frame[0:], component)
	binary.BigEndian.PutUint16(frame[2:], sequence)
	binary.BigEndian.PutUint16(frame[4:], 1)
	binary.BigEndian.PutUint16(frame[6:], uint16(len(sample)))
	return append(frame, sample...)
}

func ringValue(t *testing.T, registry *metric.MetricsRegistry, name, ring string) (float64, bool) {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() != "ring" || label.GetValue() != ring {
					continue
				}
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue(), true
				}
				return m.GetGauge().GetValue(), true
			}
		}
	}
	return 0, false
}

func TestContextMetrics_Receive(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	port := edtestutil.FreeUDPPort(t)
	ctx, err := LoadContent([]byte(edtestutil.LoopbackYAML(port)), WithMetrics(registry))
	require.NoError(t, err)
	defer ctx.Close()

	peer, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	defer peer.Close()

	core := registry.CoreMetrics()
	ring := ctx.MetricsScope() + "/Label_recv"

	_, err = peer.Write(rawFrame(7, 0, "ABCD"))
	require.NoError(t, err)
	require.NoError(t, ctx.WaitFrame(2*time.Second))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.FramesReceived.WithLabelValues("Loop")))
	assert.Equal(t, 0.0, testutil.ToFloat64(core.MissedFrames.WithLabelValues("Loop")))

	_, err = peer.Write(rawFrame(7, 3, "EFGH"))
	require.NoError(t, err)
	require.NoError(t, ctx.WaitFrame(2*time.Second))
	assert.Equal(t, 2.0, testutil.ToFloat64(core.FramesReceived.WithLabelValues("Loop")))
	assert.Equal(t, 2.0, testutil.ToFloat64(core.MissedFrames.WithLabelValues("Loop")), "sequences 1 and 2 never arrived")

	_, err = peer.Write([]byte{0, 7})
	require.NoError(t, err)
	_ = ctx.WaitFrame(2 * time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(core.DecodeErrors.WithLabelValues("Loop")))
	assert.Equal(t, 2.0, testutil.ToFloat64(core.FramesReceived.WithLabelValues("Loop")), "a truncated header is not a frame")

	writes, ok := ringValue(t, registry, "ed247_ring_writes_total", ring)
	require.True(t, ok, "ring %s not exported", ring)
	assert.Equal(t, 2.0, writes)
	size, _ := ringValue(t, registry, "ed247_ring_size", ring)
	assert.Equal(t, 2.0, size)

	label, err := ctx.Stream("Label")
	require.NoError(t, err)
	_, _, err = label.PopSample()
	require.NoError(t, err)
	reads, _ := ringValue(t, registry, "ed247_ring_reads_total", ring)
	assert.Equal(t, 1.0, reads)
}

func TestContextMetrics_Send(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	ctx, err := LoadContent([]byte(edtestutil.LoopbackYAML(edtestutil.FreeUDPPort(t))), WithMetrics(registry))
	require.NoError(t, err)
	defer ctx.Close()

	label, err := ctx.Stream("Label")
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		_, err := label.PushSample([]byte("ABCD"), nil)
		require.NoError(t, err)
	}

	ring := ctx.MetricsScope() + "/Label_send"
	overflows, ok := ringValue(t, registry, "ed247_ring_overflows_total", ring)
	require.True(t, ok)
	assert.Equal(t, 2.0, overflows, "the send stack holds 4 samples")

	require.NoError(t, ctx.SendPushedSamples())
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().FramesSent.WithLabelValues("Loop")))
	size, _ := ringValue(t, registry, "ed247_ring_size", ring)
	assert.Equal(t, 0.0, size)

	require.NoError(t, ctx.WaitFrame(2*time.Second))
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().FramesReceived.WithLabelValues("Loop")))
	assert.Equal(t, 0.0, testutil.ToFloat64(registry.CoreMetrics().DecodeErrors.WithLabelValues("Loop")))

	require.NoError(t, ctx.Close())
	_, ok = ringValue(t, registry, "ed247_ring_writes_total", ring)
	assert.False(t, ok, "closing the context releases the ring metrics")
}
