package stream

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/c360/ed247/config"
	"github.com/c360/ed247/errors"
	"github.com/c360/ed247/metric"
	"github.com/c360/ed247/pkg/buffer"
	"github.com/c360/ed247/pkg/timestamp"
)

// RecvCallback is invoked for every sample decoded into an input stream.
// Returning a non-nil error stops the remaining callbacks for that sample;
// the sample itself stays in the receive stack.
type RecvCallback func(s *Stream) error

// CallbackID identifies a registered callback for later removal
type CallbackID uint64

type callbackEntry struct {
	id CallbackID
	cb RecvCallback
}

// Option configures a Stream
type Option func(*options)

type options struct {
	logger        *slog.Logger
	clock         func() time.Time
	strictSignals bool
	metrics       *metric.MetricsRegistry
	metricsScope  string
	channel       string
}

// WithLogger sets the stream logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the clock used for default data timestamps and receive timestamps
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithStrictSignals makes Assistant.Push fail when a signal was never written
func WithStrictSignals() Option {
	return func(o *options) { o.strictSignals = true }
}

// WithMetrics registers the send and receive stack statistics as the rings
// "<scope>/<stream>_send" and "<scope>/<stream>_recv". Close releases them.
func WithMetrics(registry *metric.MetricsRegistry, scope string) Option {
	return func(o *options) {
		o.metrics = registry
		o.metricsScope = scope
	}
}

// WithChannel records the name of the owning channel
func WithChannel(name string) Option {
	return func(o *options) { o.channel = name }
}

// Stream is a typed, directional exchange unit with its send and receive stacks.
//
// A Stream is driven by a single goroutine (the owning context); only the
// stacks themselves are safe for concurrent use.
type Stream struct {
	cfg     config.StreamConfig
	channel string
	codec   codec

	sendStack *buffer.Ring[*StreamSample]
	recvStack *buffer.Ring[*StreamSample]

	signals       []*Signal
	signalsByName map[string]*Signal
	assistant     *Assistant

	cbMu      sync.Mutex
	callbacks []callbackEntry
	nextID    CallbackID

	clock  func() time.Time
	logger *slog.Logger

	userData any
}

// New creates a stream from its validated configuration.
// Both stacks are preallocated with sample_max_number slots.
func New(cfg config.StreamConfig, opts ...Option) (*Stream, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.SampleMaxSizeBytes <= 0 || cfg.SampleMaxNumber <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: stream %q is not validated", errors.ErrInvalidConfig, cfg.Name),
			"Stream", "New", "check configuration")
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := o.clock
	if clock == nil {
		clock = time.Now
	}

	s := &Stream{
		cfg:           cfg,
		channel:       o.channel,
		codec:         newCodec(&cfg),
		signalsByName: make(map[string]*Signal, len(cfg.Signals)),
		clock:         clock,
		logger:        logger.With("component", "stream", "stream", cfg.Name),
	}

	var sendOpts, recvOpts []buffer.Option
	if o.metrics != nil {
		ring := cfg.Name
		if o.metricsScope != "" {
			ring = o.metricsScope + "/" + cfg.Name
		}
		sendOpts = append(sendOpts, buffer.WithMetrics(o.metrics, ring+"_send"))
		recvOpts = append(recvOpts, buffer.WithMetrics(o.metrics, ring+"_recv"))
	}

	var err error
	if cfg.Direction.IsOut() {
		s.sendStack, err = buffer.NewRing(cfg.SampleMaxNumber, newStreamSample(cfg.SampleMaxSizeBytes), sendOpts...)
		if err != nil {
			return nil, errors.Wrap(err, "Stream", "New", "create send stack")
		}
	}
	if cfg.Direction.IsIn() {
		s.recvStack, err = buffer.NewRing(cfg.SampleMaxNumber, newStreamSample(cfg.SampleMaxSizeBytes), recvOpts...)
		if err != nil {
			s.Close()
			return nil, errors.Wrap(err, "Stream", "New", "create receive stack")
		}
	}

	for i := range s.cfg.Signals {
		sig := &Signal{cfg: s.cfg.Signals[i], stream: s}
		s.signals = append(s.signals, sig)
		s.signalsByName[sig.cfg.Name] = sig
	}
	if cfg.Type.HasSignals() {
		s.assistant = newAssistant(s, o.strictSignals)
	}

	return s, nil
}

// Close releases the stack metrics. The stream keeps working without them.
func (s *Stream) Close() {
	if s.sendStack != nil {
		s.sendStack.Close()
	}
	if s.recvStack != nil {
		s.recvStack.Close()
	}
}

// Name returns the stream name
func (s *Stream) Name() string { return s.cfg.Name }

// UID returns the stream identifier inside its channel
func (s *Stream) UID() uint16 { return s.cfg.UID }

// Type returns the stream protocol type
func (s *Stream) Type() config.StreamType { return s.cfg.Type }

// Direction returns the stream direction
func (s *Stream) Direction() config.Direction { return s.cfg.Direction }

// ChannelName returns the name of the channel the stream belongs to
func (s *Stream) ChannelName() string { return s.channel }

// Config returns a copy of the stream configuration
func (s *Stream) Config() config.StreamConfig { return s.cfg }

// SampleMaxSizeBytes returns the capacity of one sample
func (s *Stream) SampleMaxSizeBytes() int { return s.cfg.SampleMaxSizeBytes }

// SampleMaxNumber returns the depth of the send and receive stacks
func (s *Stream) SampleMaxNumber() int { return s.cfg.SampleMaxNumber }

// MaxPayloadSize returns the largest payload Encode may produce
func (s *Stream) MaxPayloadSize() int { return s.cfg.MaxPayloadSize() }

// SetUserData attaches caller data to the stream
func (s *Stream) SetUserData(v any) { s.userData = v }

// UserData returns the caller data attached to the stream
func (s *Stream) UserData() any { return s.userData }

// Signals returns the stream signals in layout order
func (s *Stream) Signals() []*Signal {
	out := make([]*Signal, len(s.signals))
	copy(out, s.signals)
	return out
}

// Signal returns the signal with the given name
func (s *Stream) Signal(name string) (*Signal, error) {
	sig, ok := s.signalsByName[name]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: signal %q in stream %q", errors.ErrNotFound, name, s.cfg.Name),
			"Stream", "Signal", "lookup")
	}
	return sig, nil
}

// FindSignals returns the signals whose name matches the regular expression
func (s *Stream) FindSignals(pattern string) ([]*Signal, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Stream", "FindSignals", "compile pattern")
	}
	var out []*Signal
	for _, sig := range s.signals {
		if re.MatchString(sig.cfg.Name) {
			out = append(out, sig)
		}
	}
	return out, nil
}

// Assistant returns the signal assistant, or an error for streams without signals
func (s *Stream) Assistant() (*Assistant, error) {
	if s.assistant == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s stream %q has no signals", errors.ErrNotFound, s.cfg.Type, s.cfg.Name),
			"Stream", "Assistant", "lookup")
	}
	return s.assistant, nil
}

// AllocateSample returns a caller-owned buffer sized for one sample
func (s *Stream) AllocateSample() []byte {
	return make([]byte, s.cfg.SampleMaxSizeBytes)
}

// CheckSampleSize reports whether a sample of the given size may be pushed
func (s *Stream) CheckSampleSize(size int) error {
	return s.codec.checkSampleSize(size)
}

// PushSample copies data into the send stack. A nil data timestamp uses the clock.
// full reports whether the send stack is full after the push; pushing into a
// full stack drops the oldest sample.
func (s *Stream) PushSample(data []byte, dataTimestamp *timestamp.Timestamp) (full bool, err error) {
	if s.sendStack == nil {
		return false, errors.WrapInvalid(
			fmt.Errorf("%w: stream %q is %s", errors.ErrDirection, s.cfg.Name, s.cfg.Direction),
			"Stream", "PushSample", "direction check")
	}
	if err := s.codec.checkSampleSize(len(data)); err != nil {
		return false, err
	}
	if s.codec.streamType == config.StreamVNAD {
		if err := s.codec.walkVNAD(data, nil); err != nil {
			return false, errors.WrapInvalid(err, "Stream", "PushSample", "check VNAD layout")
		}
	}

	slot := s.sendStack.NextWrite()
	slot.reset()
	if err := slot.Copy(data); err != nil {
		return false, err
	}
	if dataTimestamp != nil {
		slot.DataTimestamp = *dataTimestamp
	} else {
		slot.DataTimestamp = timestamp.FromTime(s.clock())
	}
	return s.sendStack.Increment(), nil
}

// PushSamples pushes several samples. timestamps may be nil or hold one entry per sample.
func (s *Stream) PushSamples(samples [][]byte, timestamps []timestamp.Timestamp) (full bool, err error) {
	if timestamps != nil && len(timestamps) != len(samples) {
		return false, errors.WrapInvalid(
			fmt.Errorf("%d samples for %d timestamps", len(samples), len(timestamps)),
			"Stream", "PushSamples", "argument check")
	}
	for i, data := range samples {
		var ts *timestamp.Timestamp
		if timestamps != nil {
			ts = &timestamps[i]
		}
		if full, err = s.PushSample(data, ts); err != nil {
			return full, err
		}
	}
	return full, nil
}

// PopSample removes the oldest received sample. empty reports whether the
// receive stack is empty after the pop. The sample is valid until the stack
// wraps onto its slot. Popping an empty stack returns errors.ErrNoData.
func (s *Stream) PopSample() (sample *StreamSample, empty bool, err error) {
	if s.recvStack == nil {
		return nil, true, errors.WrapInvalid(
			fmt.Errorf("%w: stream %q is %s", errors.ErrDirection, s.cfg.Name, s.cfg.Direction),
			"Stream", "PopSample", "direction check")
	}
	if s.recvStack.Empty() {
		return nil, true, errors.WrapTransient(errors.ErrNoData, "Stream", "PopSample", "pop receive stack")
	}
	sample, empty = s.recvStack.PopFront()
	return sample, empty, nil
}

// SendStackSize returns the number of samples waiting to be sent
func (s *Stream) SendStackSize() int {
	if s.sendStack == nil {
		return 0
	}
	return s.sendStack.Size()
}

// RecvStackSize returns the number of received samples not yet popped
func (s *Stream) RecvStackSize() int {
	if s.recvStack == nil {
		return 0
	}
	return s.recvStack.Size()
}

// HasSamplesToSend reports whether the send stack holds samples
func (s *Stream) HasSamplesToSend() bool {
	return s.sendStack != nil && !s.sendStack.Empty()
}

// SendStackStats returns the send stack statistics, nil for input-only streams
func (s *Stream) SendStackStats() *buffer.Statistics {
	if s.sendStack == nil {
		return nil
	}
	return s.sendStack.Stats()
}

// RecvStackStats returns the receive stack statistics, nil for output-only streams
func (s *Stream) RecvStackStats() *buffer.Statistics {
	if s.recvStack == nil {
		return nil
	}
	return s.recvStack.Stats()
}

// RegisterRecvCallback adds a callback run for every decoded sample
func (s *Stream) RegisterRecvCallback(cb RecvCallback) (CallbackID, error) {
	if cb == nil {
		return 0, errors.WrapInvalid(fmt.Errorf("nil callback"), "Stream", "RegisterRecvCallback", "argument check")
	}
	if s.recvStack == nil {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: stream %q is %s", errors.ErrDirection, s.cfg.Name, s.cfg.Direction),
			"Stream", "RegisterRecvCallback", "direction check")
	}
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.nextID++
	s.callbacks = append(s.callbacks, callbackEntry{id: s.nextID, cb: cb})
	return s.nextID, nil
}

// UnregisterRecvCallback removes a callback. It reports whether the id was registered.
func (s *Stream) UnregisterRecvCallback(id CallbackID) bool {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	for i, entry := range s.callbacks {
		if entry.id == id {
			s.callbacks = append(s.callbacks[:i], s.callbacks[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Stream) runCallbacks() {
	s.cbMu.Lock()
	callbacks := s.callbacks
	s.cbMu.Unlock()

	for _, entry := range callbacks {
		if err := entry.cb(s); err != nil {
			s.logger.Debug("Receive callback stopped the chain", "callback", entry.id, "error", err)
			return
		}
	}
}

// Encode writes the pending samples of the send stack into dst, oldest first,
// and returns the number of bytes written. Samples that do not fit stay in the
// stack for a later frame; errors.ErrBufferTooSmall is returned when not even
// the first one fits.
func (s *Stream) Encode(dst []byte) (int, error) {
	if s.sendStack == nil {
		return 0, nil
	}

	var base timestamp.Timestamp
	n := 0
	count := 0
	for {
		sample, ok := s.sendStack.Front()
		if !ok {
			break
		}

		tsSize := s.codec.timestampSize(count)
		var offset int32
		if s.codec.timestamped && count > 0 && s.codec.offsets {
			var fits bool
			offset, fits = sample.DataTimestamp.Sub(base)
			if !fits {
				// restart the timestamp chain in the next frame
				break
			}
		}

		need := tsSize + s.codec.wireSize(sample.Size())
		if n+need > len(dst) {
			if count == 0 {
				return 0, errors.WrapInvalid(
					fmt.Errorf("%w: %d bytes needed, %d available", errors.ErrBufferTooSmall, need, len(dst)),
					"Stream", "Encode", "encode sample")
			}
			break
		}

		switch {
		case tsSize == timestamp.Size:
			base = sample.DataTimestamp
			base.Put(dst[n:])
		case tsSize == timestamp.OffsetSize:
			putInt32(dst[n:], offset)
		}
		n += tsSize

		if s.codec.prefix > 0 {
			putSizePrefix(dst[n:], s.codec.prefix, sample.Size())
			n += s.codec.prefix
		}

		payload := dst[n : n+s.codec.wireSize(sample.Size())-s.codec.prefix]
		written := copy(payload, sample.Bytes())
		clear(payload[written:])
		if err := s.codec.swap(payload); err != nil {
			// pushed samples are layout checked, this only guards corrupted stacks
			s.logger.Warn("Dropping malformed sample", "error", err)
			s.sendStack.PopFront()
			n -= tsSize + s.codec.prefix
			continue
		}
		n += len(payload)

		s.sendStack.PopFront()
		count++
	}
	return n, nil
}

// Decode parses a stream payload into the receive stack and runs the receive
// callbacks for every sample. Samples decoded before an error are kept.
func (s *Stream) Decode(data []byte, info SampleInfo) error {
	if s.recvStack == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: stream %q is %s", errors.ErrDirection, s.cfg.Name, s.cfg.Direction),
			"Stream", "Decode", "direction check")
	}

	recvTimestamp := timestamp.FromTime(s.clock())
	var base timestamp.Timestamp
	off := 0
	for count := 0; off < len(data); count++ {
		var dataTimestamp timestamp.Timestamp
		switch s.codec.timestampSize(count) {
		case timestamp.Size:
			if len(data)-off < timestamp.Size {
				return s.decodeError(errors.ErrTruncated, "data timestamp", count)
			}
			base = timestamp.Read(data[off:])
			dataTimestamp = base
			off += timestamp.Size
		case timestamp.OffsetSize:
			if len(data)-off < timestamp.OffsetSize {
				return s.decodeError(errors.ErrTruncated, "data timestamp offset", count)
			}
			dataTimestamp = base.AddNanos(int64(readInt32(data[off:])))
			off += timestamp.OffsetSize
		default:
			dataTimestamp = base
		}

		size := s.codec.maxSize
		if s.codec.prefix > 0 {
			if len(data)-off < s.codec.prefix {
				return s.decodeError(errors.ErrTruncated, "size prefix", count)
			}
			size = readSizePrefix(data[off:], s.codec.prefix)
			off += s.codec.prefix
		}
		if err := s.codec.checkSampleSize(size); err != nil {
			return s.decodeError(errors.ErrSampleSize, fmt.Sprintf("size %d", size), count)
		}
		if len(data)-off < size {
			return s.decodeError(errors.ErrTruncated, fmt.Sprintf("%d bytes of data", size), count)
		}

		slot := s.recvStack.NextWrite()
		slot.reset()
		if err := slot.Copy(data[off : off+size]); err != nil {
			return err
		}
		off += size
		if err := s.codec.swap(slot.Buffer()[:size]); err != nil {
			return s.decodeError(err, "sample layout", count)
		}
		slot.DataTimestamp = dataTimestamp
		slot.RecvTimestamp = recvTimestamp
		slot.Info = info
		s.recvStack.Increment()

		s.runCallbacks()
	}
	return nil
}

func (s *Stream) decodeError(err error, what string, sample int) error {
	return errors.WrapInvalid(fmt.Errorf("%w: stream %q sample #%d: %s", err, s.cfg.Name, sample, what),
		"Stream", "Decode", "decode payload")
}

func putInt32(b []byte, v int32) {
	binary.BigEndian.PutUint32(b, uint32(v))
}

func readInt32(b []byte) int32 {
	return int32(binary.BigEndian.Uint32(b))
}
