package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the protocol-level metrics shared by every ED247 context
type Metrics struct {
	// Channel metrics
	FramesSent     *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	DecodeErrors   *prometheus.CounterVec
	MissedFrames   *prometheus.CounterVec

	// Socket metrics
	DatagramsReceived *prometheus.CounterVec
	BytesReceived     *prometheus.CounterVec
	SendErrors        *prometheus.CounterVec

	// Receive loop metrics
	WaitDuration *prometheus.HistogramVec

	// Bridge metrics
	SamplesForwarded *prometheus.CounterVec
	BridgeErrors     *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all protocol metrics
func NewMetrics() *Metrics {
	return &Metrics{
		FramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ed247",
				Subsystem: "channel",
				Name:      "frames_sent_total",
				Help:      "Total number of channel frames sent",
			},
			[]string{"channel"},
		),

		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ed247",
				Subsystem: "channel",
				Name:      "frames_received_total",
				Help:      "Total number of channel frames decoded",
			},
			[]string{"channel"},
		),

		DecodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ed247",
				Subsystem: "channel",
				Name:      "decode_errors_total",
				Help:      "Total number of channel frames rejected while decoding",
			},
			[]string{"channel"},
		),

		MissedFrames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ed247",
				Subsystem: "channel",
				Name:      "missed_frames_total",
				Help:      "Total number of frames detected as missing from the sequence numbers",
			},
			[]string{"channel"},
		),

		DatagramsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ed247",
				Subsystem: "socket",
				Name:      "datagrams_received_total",
				Help:      "Total number of datagrams read from a socket",
			},
			[]string{"socket"},
		),

		BytesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ed247",
				Subsystem: "socket",
				Name:      "bytes_received_total",
				Help:      "Total number of bytes read from a socket",
			},
			[]string{"socket"},
		),

		SendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ed247",
				Subsystem: "socket",
				Name:      "send_errors_total",
				Help:      "Total number of failed datagram sends",
			},
			[]string{"socket"},
		),

		WaitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ed247",
				Subsystem: "receiver",
				Name:      "wait_duration_seconds",
				Help:      "Time spent waiting for incoming frames",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"result"},
		),

		SamplesForwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ed247",
				Subsystem: "bridge",
				Name:      "samples_forwarded_total",
				Help:      "Total number of samples forwarded by the bridge",
			},
			[]string{"stream", "sink"},
		),

		BridgeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ed247",
				Subsystem: "bridge",
				Name:      "errors_total",
				Help:      "Total number of bridge errors",
			},
			[]string{"type"},
		),
	}
}

// RecordFrameSent increments the sent frame counter of a channel
func (c *Metrics) RecordFrameSent(channel string) {
	c.FramesSent.WithLabelValues(channel).Inc()
}

// RecordFrameReceived increments the decoded frame counter of a channel
func (c *Metrics) RecordFrameReceived(channel string) {
	c.FramesReceived.WithLabelValues(channel).Inc()
}

// RecordDecodeError increments the decode error counter of a channel
func (c *Metrics) RecordDecodeError(channel string) {
	c.DecodeErrors.WithLabelValues(channel).Inc()
}

// RecordMissedFrames adds the number of frames lost between two sequence numbers
func (c *Metrics) RecordMissedFrames(channel string, count int) {
	if count <= 0 {
		return
	}
	c.MissedFrames.WithLabelValues(channel).Add(float64(count))
}

// RecordDatagram records one datagram read from a socket
func (c *Metrics) RecordDatagram(socket string, size int) {
	c.DatagramsReceived.WithLabelValues(socket).Inc()
	c.BytesReceived.WithLabelValues(socket).Add(float64(size))
}

// RecordSendError increments the send error counter of a socket
func (c *Metrics) RecordSendError(socket string) {
	c.SendErrors.WithLabelValues(socket).Inc()
}

// RecordWait records the duration of a frame wait and its outcome
func (c *Metrics) RecordWait(result string, duration time.Duration) {
	c.WaitDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordSampleForwarded increments the forwarded sample counter
func (c *Metrics) RecordSampleForwarded(stream, sink string) {
	c.SamplesForwarded.WithLabelValues(stream, sink).Inc()
}

// RecordBridgeError increments the bridge error counter
func (c *Metrics) RecordBridgeError(errorType string) {
	c.BridgeErrors.WithLabelValues(errorType).Inc()
}
