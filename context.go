package ed247

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/ed247/channel"
	"github.com/c360/ed247/config"
	"github.com/c360/ed247/errors"
	"github.com/c360/ed247/metric"
	"github.com/c360/ed247/stream"
	"github.com/c360/ed247/transport"
)

// Option configures a Context
type Option func(*options)

type options struct {
	logger        *slog.Logger
	registry      *metric.MetricsRegistry
	clock         func() time.Time
	strictSignals bool
	joinFunc      transport.JoinFunc
}

// WithLogger sets the logger of the context and everything it creates
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records protocol, socket and stack metrics in the registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) { o.registry = registry }
}

// WithClock sets the clock used for transport, data and receive timestamps
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithStrictSignals makes assistant pushes fail when a signal was never written
func WithStrictSignals() Option {
	return func(o *options) { o.strictSignals = true }
}

// WithJoinFunc replaces the multicast group join of the socket factory
func WithJoinFunc(fn transport.JoinFunc) Option {
	return func(o *options) { o.joinFunc = fn }
}

// contextSeq numbers the contexts of the process so that their stack metrics
// never collide in a shared registry
var contextSeq atomic.Uint64

// CallbackID identifies a context wide receive callback
type CallbackID uint64

type streamCallback struct {
	stream *stream.Stream
	id     stream.CallbackID
}

// Context owns the channels, streams and sockets of one ED247 component.
type Context struct {
	cfg *config.Config

	channels       []*channel.Channel
	channelsByName map[string]*channel.Channel
	streams        []*stream.Stream
	streamsByName  map[string]*stream.Stream

	factory   *transport.Factory
	receivers *transport.ReceiverSet

	cbMu       sync.Mutex
	callbacks  map[CallbackID][]streamCallback
	nextCallID CallbackID

	metricsScope string

	logger *slog.Logger
	closed bool
}

// LoadFile loads a configuration file and creates its context
func LoadFile(path string, opts ...Option) (*Context, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(cfg, opts...)
}

// LoadContent loads an in-memory configuration and creates its context
func LoadContent(content []byte, opts ...Option) (*Context, error) {
	cfg, err := config.Load(content)
	if err != nil {
		return nil, err
	}
	return Load(cfg, opts...)
}

// Load creates a context from a configuration tree: it builds every stream
// and channel, then opens and binds the sockets. No context is returned when
// any step fails.
func Load(cfg *config.Config, opts ...Option) (*Context, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Context", "Load", "check configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	var core *metric.Metrics
	if o.registry != nil {
		core = o.registry.CoreMetrics()
	}

	c := &Context{
		cfg:            cfg,
		channelsByName: make(map[string]*channel.Channel, len(cfg.Channels)),
		streamsByName:  make(map[string]*stream.Stream),
		callbacks:      make(map[CallbackID][]streamCallback),
		logger:         logger.With("component", "context", "name", cfg.Name),
	}

	streamOpts := []stream.Option{stream.WithLogger(logger)}
	channelOpts := []channel.Option{channel.WithLogger(logger)}
	factoryOpts := []transport.Option{transport.WithLogger(logger)}
	if o.clock != nil {
		streamOpts = append(streamOpts, stream.WithClock(o.clock))
		channelOpts = append(channelOpts, channel.WithClock(o.clock))
	}
	if o.strictSignals {
		streamOpts = append(streamOpts, stream.WithStrictSignals())
	}
	if o.registry != nil {
		c.metricsScope = fmt.Sprintf("%s-%d", cfg.Name, contextSeq.Add(1))
		streamOpts = append(streamOpts, stream.WithMetrics(o.registry, c.metricsScope))
		channelOpts = append(channelOpts, channel.WithMetrics(core))
		factoryOpts = append(factoryOpts, transport.WithMetrics(core))
	}
	if o.joinFunc != nil {
		factoryOpts = append(factoryOpts, transport.WithJoinFunc(o.joinFunc))
	}

	for _, cc := range cfg.Channels {
		streams := make([]*stream.Stream, 0, len(cc.Streams))
		for _, sc := range cc.Streams {
			s, err := stream.New(sc, append(streamOpts, stream.WithChannel(cc.Name))...)
			if err != nil {
				c.closeStreams()
				return nil, err
			}
			streams = append(streams, s)
			c.streams = append(c.streams, s)
			c.streamsByName[s.Name()] = s
		}
		ch, err := channel.New(cc, cfg.ComponentIdentifier, streams, channelOpts...)
		if err != nil {
			c.closeStreams()
			return nil, err
		}
		c.channels = append(c.channels, ch)
		c.channelsByName[ch.Name()] = ch
	}

	c.factory = transport.NewFactory(factoryOpts...)
	for _, ch := range c.channels {
		if err := c.factory.Register(ch); err != nil {
			_ = c.factory.Close()
			c.closeStreams()
			return nil, err
		}
	}

	receiverOpts := []transport.ReceiverSetOption{transport.WithReceiverLogger(logger)}
	if core != nil {
		receiverOpts = append(receiverOpts, transport.WithReceiverMetrics(core))
	}
	receivers, err := transport.NewReceiverSet(c.factory.InputSockets(), receiverOpts...)
	if err != nil {
		_ = c.factory.Close()
		c.closeStreams()
		return nil, err
	}
	c.receivers = receivers

	c.logger.Info("Context loaded",
		"component_identifier", cfg.ComponentIdentifier,
		"channels", len(c.channels),
		"streams", len(c.streams),
		"sockets", len(c.factory.Sockets()),
		"input_sockets", receivers.Len())
	return c, nil
}

// Close releases every socket and the stack metrics. The context cannot be
// used afterwards.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.closeStreams()
	return c.factory.Close()
}

func (c *Context) closeStreams() {
	for _, s := range c.streams {
		s.Close()
	}
}

// MetricsScope returns the prefix of the stack metric rings of this context,
// empty without a metrics registry
func (c *Context) MetricsScope() string { return c.metricsScope }

// Config returns the validated configuration of the context
func (c *Context) Config() *config.Config { return c.cfg }

// ComponentIdentifier returns the identifier stamped in emitted frame headers
func (c *Context) ComponentIdentifier() uint16 { return c.cfg.ComponentIdentifier }

// Channels returns every channel in configuration order
func (c *Context) Channels() []*channel.Channel {
	out := make([]*channel.Channel, len(c.channels))
	copy(out, c.channels)
	return out
}

// Streams returns every stream in configuration order
func (c *Context) Streams() []*stream.Stream {
	out := make([]*stream.Stream, len(c.streams))
	copy(out, c.streams)
	return out
}

// Channel returns the channel with the given name
func (c *Context) Channel(name string) (*channel.Channel, error) {
	ch, ok := c.channelsByName[name]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: channel %q", errors.ErrNotFound, name), "Context", "Channel", "lookup")
	}
	return ch, nil
}

// Stream returns the stream with the given name
func (c *Context) Stream(name string) (*stream.Stream, error) {
	s, ok := c.streamsByName[name]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: stream %q", errors.ErrNotFound, name), "Context", "Stream", "lookup")
	}
	return s, nil
}

// FindChannels returns the channels whose name matches the regular expression
func (c *Context) FindChannels(pattern string) ([]*channel.Channel, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Context", "FindChannels", "compile pattern")
	}
	var out []*channel.Channel
	for _, ch := range c.channels {
		if re.MatchString(ch.Name()) {
			out = append(out, ch)
		}
	}
	return out, nil
}

// FindStreams returns the streams whose name matches the regular expression
func (c *Context) FindStreams(pattern string) ([]*stream.Stream, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Context", "FindStreams", "compile pattern")
	}
	var out []*stream.Stream
	for _, s := range c.streams {
		if re.MatchString(s.Name()) {
			out = append(out, s)
		}
	}
	return out, nil
}

// FindSignals returns the signals of every stream whose name matches the regular expression
func (c *Context) FindSignals(pattern string) ([]*stream.Signal, error) {
	var out []*stream.Signal
	for _, s := range c.streams {
		signals, err := s.FindSignals(pattern)
		if err != nil {
			return nil, errors.Wrap(err, "Context", "FindSignals", "search stream "+s.Name())
		}
		out = append(out, signals...)
	}
	return out, nil
}

// SendPushedSamples encodes and sends the pending samples of every channel,
// as many frames as needed to drain the send stacks. Failed sends are logged
// and do not stop the other channels; the first error is returned.
func (c *Context) SendPushedSamples() error {
	if c.closed {
		return errors.WrapInvalid(errors.ErrClosed, "Context", "SendPushedSamples", "check state")
	}
	var firstErr error
	for _, ch := range c.channels {
		if !ch.HasSamplesToSend() {
			continue
		}
		if err := ch.EncodeAndSend(); err != nil {
			c.logger.Warn("Failed to send channel", "channel", ch.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// WaitFrame waits for at least one frame and dispatches everything received.
// A negative timeout waits forever. See transport.ReceiverSet.WaitFrame.
func (c *Context) WaitFrame(timeout time.Duration) error {
	if c.closed {
		return errors.WrapInvalid(errors.ErrClosed, "Context", "WaitFrame", "check state")
	}
	return c.receivers.WaitFrame(timeout)
}

// WaitDuring receives frames for the whole duration.
// See transport.ReceiverSet.WaitDuring.
func (c *Context) WaitDuring(duration time.Duration) error {
	if c.closed {
		return errors.WrapInvalid(errors.ErrClosed, "Context", "WaitDuring", "check state")
	}
	return c.receivers.WaitDuring(duration)
}

// RegisterRecvCallback registers a callback on every input stream
func (c *Context) RegisterRecvCallback(cb stream.RecvCallback) (CallbackID, error) {
	if cb == nil {
		return 0, errors.WrapInvalid(fmt.Errorf("nil callback"), "Context", "RegisterRecvCallback", "argument check")
	}
	var registered []streamCallback
	for _, s := range c.streams {
		if !s.Direction().IsIn() {
			continue
		}
		id, err := s.RegisterRecvCallback(cb)
		if err != nil {
			for _, r := range registered {
				r.stream.UnregisterRecvCallback(r.id)
			}
			return 0, err
		}
		registered = append(registered, streamCallback{stream: s, id: id})
	}

	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.nextCallID++
	c.callbacks[c.nextCallID] = registered
	return c.nextCallID, nil
}

// UnregisterRecvCallback removes a context wide callback from every input stream
func (c *Context) UnregisterRecvCallback(id CallbackID) bool {
	c.cbMu.Lock()
	registered, ok := c.callbacks[id]
	delete(c.callbacks, id)
	c.cbMu.Unlock()

	for _, r := range registered {
		r.stream.UnregisterRecvCallback(r.id)
	}
	return ok
}

// RegisterComSendCallback registers a hook called with every emitted frame
func (c *Context) RegisterComSendCallback(fn transport.ComHook) transport.HookID {
	return c.factory.OnSend(fn)
}

// RegisterComRecvCallback registers a hook called with every received datagram
func (c *Context) RegisterComRecvCallback(fn transport.ComHook) transport.HookID {
	return c.factory.OnRecv(fn)
}

// UnregisterComCallback removes a send or receive com hook
func (c *Context) UnregisterComCallback(id transport.HookID) bool {
	return c.factory.RemoveHook(id)
}
