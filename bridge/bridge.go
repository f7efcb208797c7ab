package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/ed247"
	"github.com/c360/ed247/errors"
	"github.com/c360/ed247/metric"
	"github.com/c360/ed247/stream"
)

// Sink receives the encoded sample events
type Sink interface {
	Name() string
	Publish(ev *SampleEvent, payload []byte) error
}

// Config selects what the bridge forwards
type Config struct {
	// SubjectPrefix is the NATS subject root, "ed247" when empty
	SubjectPrefix string
	// Streams is a regular expression on the input stream names to forward, all when empty
	Streams string
	// WaitTimeout bounds each wait for frames, so inbound messages are handled in time
	WaitTimeout time.Duration
	// InboundBuffer is the capacity of the NATS delivery channel
	InboundBuffer int
}

// DefaultConfig returns the bridge defaults
func DefaultConfig() Config {
	return Config{
		SubjectPrefix: "ed247",
		WaitTimeout:   50 * time.Millisecond,
		InboundBuffer: 256,
	}
}

// Option configures a Bridge
type Option func(*Bridge)

// WithSink adds a sink receiving every forwarded sample
func WithSink(sink Sink) Option {
	return func(b *Bridge) { b.sinks = append(b.sinks, sink) }
}

// WithNATSInput subscribes to <prefix>.out.> and pushes the messages into the
// matching output streams
func WithNATSInput(sub NATSSubscriber) Option {
	return func(b *Bridge) { b.subscriber = sub }
}

// WithLogger sets the bridge logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// WithMetrics records forwarded samples and bridge errors
func WithMetrics(metrics *metric.Metrics) Option {
	return func(b *Bridge) { b.metrics = metrics }
}

// Bridge forwards the samples received by an ED247 context to its sinks and
// emits the samples it receives from NATS. One goroutine runs the context:
// NATS deliveries come through a channel drained between waits.
type Bridge struct {
	ed      *ed247.Context
	cfg     Config
	inputs  []*stream.Stream
	sinks   []Sink
	inbound chan *nats.Msg

	subscriber NATSSubscriber
	sub        *nats.Subscription

	mu      sync.Mutex
	lastErr error

	logger  *slog.Logger
	metrics *metric.Metrics
}

// New creates a bridge over a loaded context
func New(ed *ed247.Context, cfg Config, opts ...Option) (*Bridge, error) {
	defaults := DefaultConfig()
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = defaults.SubjectPrefix
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaults.WaitTimeout
	}
	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = defaults.InboundBuffer
	}

	b := &Bridge{ed: ed, cfg: cfg, inbound: make(chan *nats.Msg, cfg.InboundBuffer)}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", "bridge")

	pattern := cfg.Streams
	if pattern == "" {
		pattern = ".*"
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Bridge", "New", "compile stream pattern")
	}
	for _, s := range ed.Streams() {
		if s.Direction().IsIn() && re.MatchString(s.Name()) {
			b.inputs = append(b.inputs, s)
		}
	}
	return b, nil
}

// Inputs returns the forwarded input streams
func (b *Bridge) Inputs() []*stream.Stream {
	out := make([]*stream.Stream, len(b.inputs))
	copy(out, b.inputs)
	return out
}

// Health reports the last failure of the run loop
func (b *Bridge) Health() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

func (b *Bridge) setErr(err error) {
	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()
}

// Run alternates between waiting for frames, forwarding the received samples
// and emitting the inbound NATS messages, until ctx is done or the context
// fails.
func (b *Bridge) Run(ctx context.Context) error {
	if b.subscriber != nil {
		subject := b.cfg.SubjectPrefix + outSegment + ">"
		sub, err := b.subscriber.ChanSubscribe(subject, b.inbound)
		if err != nil {
			return errors.WrapTransient(err, "Bridge", "Run", "subscribe "+subject)
		}
		b.sub = sub
		defer func() {
			if b.sub != nil {
				_ = b.sub.Unsubscribe()
			}
		}()
		b.logger.Info("Listening for outbound samples", "subject", subject)
	}

	b.logger.Info("Bridge running", "inputs", len(b.inputs), "sinks", len(b.sinks))
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		b.drainInbound()

		err := b.ed.WaitFrame(b.cfg.WaitTimeout)
		switch ed247.StatusOf(err) {
		case ed247.StatusSuccess:
			b.Forward()
		case ed247.StatusTimeout, ed247.StatusNoData:
		default:
			b.setErr(err)
			if b.metrics != nil {
				b.metrics.RecordBridgeError("wait")
			}
			return errors.Wrap(err, "Bridge", "Run", "wait frame")
		}
	}
}

// Forward pops every pending sample of the forwarded streams and publishes it
// to all sinks. It returns the number of samples forwarded.
func (b *Bridge) Forward() int {
	count := 0
	for _, s := range b.inputs {
		for s.RecvStackSize() > 0 {
			sample, _, err := s.PopSample()
			if err != nil {
				break
			}
			ev := NewSampleEvent(s, sample)
			payload, err := json.Marshal(ev)
			if err != nil {
				b.logger.Error("Failed to encode sample event", "stream", s.Name(), "error", err)
				continue
			}
			count++
			for _, sink := range b.sinks {
				if err := sink.Publish(ev, payload); err != nil {
					b.logger.Warn("Failed to publish sample", "sink", sink.Name(), "stream", s.Name(), "error", err)
					if b.metrics != nil {
						b.metrics.RecordBridgeError(sink.Name())
					}
					continue
				}
				if b.metrics != nil {
					b.metrics.RecordSampleForwarded(s.Name(), sink.Name())
				}
			}
		}
	}
	return count
}

func (b *Bridge) drainInbound() {
	pushed := false
	for {
		select {
		case msg := <-b.inbound:
			if err := b.handleOutbound(msg); err != nil {
				b.logger.Warn("Dropped outbound sample", "subject", msg.Subject, "error", err)
				if b.metrics != nil {
					b.metrics.RecordBridgeError("outbound")
				}
				continue
			}
			pushed = true
		default:
			if pushed {
				if err := b.ed.SendPushedSamples(); err != nil {
					b.logger.Warn("Failed to send pushed samples", "error", err)
				}
			}
			return
		}
	}
}

// handleOutbound pushes the raw message payload as one sample of the stream
// named by the subject
func (b *Bridge) handleOutbound(msg *nats.Msg) error {
	name, err := streamFromOutSubject(b.cfg.SubjectPrefix, msg.Subject)
	if err != nil {
		return err
	}
	s, err := b.ed.Stream(name)
	if err != nil {
		return err
	}
	if !s.Direction().IsOut() {
		return errors.WrapInvalid(fmt.Errorf("%w: stream %q is %s", errors.ErrDirection, name, s.Direction()),
			"Bridge", "handleOutbound", "direction check")
	}
	if _, err := s.PushSample(msg.Data, nil); err != nil {
		return err
	}
	return nil
}
