package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/ed247/metric"
)

// bufferMetrics exports the statistics of one ring. Every collector carries
// the ring name as a constant label and is registered under that name as its
// scope, so the ring can release them all on Close.
type bufferMetrics struct {
	registry *metric.MetricsRegistry
	scope    string

	writes    prometheus.Counter
	reads     prometheus.Counter
	overflows prometheus.Counter
	drops     prometheus.Counter

	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newBufferMetrics(registry *metric.MetricsRegistry, scope string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"ring": scope}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ed247", Subsystem: "ring", Name: name, Help: help, ConstLabels: labels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ed247", Subsystem: "ring", Name: name, Help: help, ConstLabels: labels,
		})
	}

	m := &bufferMetrics{
		registry:    registry,
		scope:       scope,
		writes:      counter("writes_total", "Total number of samples pushed"),
		reads:       counter("reads_total", "Total number of samples popped"),
		overflows:   counter("overflows_total", "Total number of pushes into a full ring"),
		drops:       counter("drops_total", "Total number of oldest samples dropped"),
		size:        gauge("size", "Current number of samples in the ring"),
		utilization: gauge("utilization", "Ring utilization as a ratio (0.0 to 1.0)"),
	}

	collectors := []struct {
		name string
		c    prometheus.Collector
	}{
		{"writes", m.writes},
		{"reads", m.reads},
		{"overflows", m.overflows},
		{"drops", m.drops},
		{"size", m.size},
		{"utilization", m.utilization},
	}
	for i, entry := range collectors {
		if err := registry.Register(scope, entry.name, entry.c); err != nil {
			for _, done := range collectors[:i] {
				registry.Unregister(scope, done.name)
			}
			return nil, err
		}
	}
	return m, nil
}

func (m *bufferMetrics) unregister() {
	m.registry.UnregisterScope(m.scope)
}

func (m *bufferMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordRead(size, capacity int) {
	m.reads.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordOverflow() {
	m.overflows.Inc()
}

func (m *bufferMetrics) recordDrop() {
	m.drops.Inc()
}

func (m *bufferMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
