package metric

import (
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/ed247/errors"
)

// MetricsRegistry owns the Prometheus registry of a process: the core protocol
// metrics shared by every context, plus scoped collectors (one scope per
// sample ring) that their owner releases when it is closed.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics

	mu     sync.Mutex
	scopes map[string]map[string]prometheus.Collector
}

// NewMetricsRegistry creates a registry with the core protocol metrics and
// the Go runtime collectors
func NewMetricsRegistry() *MetricsRegistry {
	registry := &MetricsRegistry{
		prometheusRegistry: prometheus.NewRegistry(),
		Metrics:            NewMetrics(),
		scopes:             make(map[string]map[string]prometheus.Collector),
	}
	registry.registerMetrics()

	registry.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core protocol metrics
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

// Register adds a collector under scope/name. Registering the same name twice
// in a scope, or a collector Prometheus already knows, is an invalid error.
func (r *MetricsRegistry) Register(scope, name string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scopes[scope][name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered in scope %s", name, scope),
			"MetricsRegistry", "Register", "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(c); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register",
				fmt.Sprintf("prometheus conflict for metric %s", name))
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register", "register collector with prometheus")
	}

	named, ok := r.scopes[scope]
	if !ok {
		named = make(map[string]prometheus.Collector)
		r.scopes[scope] = named
	}
	named[name] = c
	return nil
}

// Unregister removes one collector. It reports whether it was registered.
func (r *MetricsRegistry) Unregister(scope, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.scopes[scope][name]
	if !exists {
		return false
	}
	r.prometheusRegistry.Unregister(c)
	delete(r.scopes[scope], name)
	if len(r.scopes[scope]) == 0 {
		delete(r.scopes, scope)
	}
	return true
}

// UnregisterScope removes every collector of a scope and returns how many
// were removed
func (r *MetricsRegistry) UnregisterScope(scope string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	named := r.scopes[scope]
	for _, c := range named {
		r.prometheusRegistry.Unregister(c)
	}
	delete(r.scopes, scope)
	return len(named)
}

// Scopes returns the scopes holding at least one collector, sorted
func (r *MetricsRegistry) Scopes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.scopes))
	for scope := range r.scopes {
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}

func (r *MetricsRegistry) registerMetrics() {
	r.prometheusRegistry.MustRegister(
		r.Metrics.FramesSent,
		r.Metrics.FramesReceived,
		r.Metrics.DecodeErrors,
		r.Metrics.MissedFrames,
		r.Metrics.DatagramsReceived,
		r.Metrics.BytesReceived,
		r.Metrics.SendErrors,
		r.Metrics.WaitDuration,
		r.Metrics.SamplesForwarded,
		r.Metrics.BridgeErrors,
	)
}
