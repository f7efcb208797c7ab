package buffer

import (
	"github.com/c360/ed247/metric"
)

// Option configures ring behavior using the functional options pattern.
type Option func(*bufferOptions)

// bufferOptions holds internal configuration for ring instances.
// Stats are ALWAYS collected - they are not optional.
type bufferOptions struct {
	// metricsReg is optional - if provided, ring stats are also exposed as Prometheus metrics
	metricsReg *metric.MetricsRegistry

	// metricsScope names the ring: the "ring" label and the registry scope
	metricsScope string
}

// WithMetrics enables Prometheus metrics export for ring statistics under the
// given scope, which must be unique in the registry until the ring is closed.
// If registry is nil or scope is empty, this option is ignored.
func WithMetrics(registry *metric.MetricsRegistry, scope string) Option {
	return func(opts *bufferOptions) {
		if registry != nil && scope != "" {
			opts.metricsReg = registry
			opts.metricsScope = scope
		}
	}
}

// applyOptions applies functional options to create final ring configuration.
func applyOptions(options ...Option) *bufferOptions {
	opts := &bufferOptions{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
