package channel

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/ed247/config"
	"github.com/c360/ed247/errors"
	"github.com/c360/ed247/metric"
	"github.com/c360/ed247/pkg/timestamp"
	"github.com/c360/ed247/stream"
)

// streamHeaderSize is the [u16 uid][u16 size] prefix of every stream block
const streamHeaderSize = 4

// FrameSender emits an encoded frame to one socket's destinations
type FrameSender interface {
	SendFrame(frame []byte) error
}

// Option configures a Channel
type Option func(*options)

type options struct {
	logger  *slog.Logger
	clock   func() time.Time
	metrics *metric.Metrics
}

// WithLogger sets the channel logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the clock used for transport timestamps
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithMetrics records frame counters in the core metrics
func WithMetrics(metrics *metric.Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// Channel groups streams into frames and dispatches received frames to them by UID.
type Channel struct {
	cfg     config.ChannelConfig
	header  *FrameHeader
	streams []*stream.Stream
	byUID   map[uint16]*stream.Stream

	buf     []byte
	senders []FrameSender

	clock          func() time.Time
	logger         *slog.Logger
	metrics        *metric.Metrics
	reportedMissed uint64
}

// New creates a channel over already built streams, one per configured stream.
func New(cfg config.ChannelConfig, componentID uint16, streams []*stream.Stream, opts ...Option) (*Channel, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := o.clock
	if clock == nil {
		clock = time.Now
	}

	if len(streams) == 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: channel %q has no stream", errors.ErrInvalidConfig, cfg.Name),
			"Channel", "New", "check streams")
	}
	if cfg.Simple && len(streams) != 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: simple channel %q has %d streams", errors.ErrInvalidConfig, cfg.Name, len(streams)),
			"Channel", "New", "check streams")
	}

	c := &Channel{
		cfg:     cfg,
		header:  NewFrameHeader(cfg.Header, componentID),
		streams: streams,
		byUID:   make(map[uint16]*stream.Stream, len(streams)),
		clock:   clock,
		logger:  logger.With("component", "channel", "channel", cfg.Name),
		metrics: o.metrics,
	}

	size := c.header.Size()
	for _, s := range streams {
		if _, dup := c.byUID[s.UID()]; dup {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: channel %q has duplicate uid %d", errors.ErrInvalidConfig, cfg.Name, s.UID()),
				"Channel", "New", "check streams")
		}
		c.byUID[s.UID()] = s
		if !cfg.Simple {
			size += streamHeaderSize
		}
		size += s.MaxPayloadSize()
	}

	frameMax := cfg.FrameMaxSize
	if frameMax <= 0 || frameMax > config.MaxFrameSize {
		frameMax = config.MaxFrameSize
	}
	if size > frameMax {
		size = frameMax
	}
	c.buf = make([]byte, size)

	return c, nil
}

// Name returns the channel name
func (c *Channel) Name() string { return c.cfg.Name }

// Simple reports whether frames carry a single stream without UID framing
func (c *Channel) Simple() bool { return c.cfg.Simple }

// Config returns a copy of the channel configuration
func (c *Channel) Config() config.ChannelConfig { return c.cfg }

// Streams returns the channel streams in configuration order
func (c *Channel) Streams() []*stream.Stream {
	out := make([]*stream.Stream, len(c.streams))
	copy(out, c.streams)
	return out
}

// Stream returns the stream with the given UID
func (c *Channel) Stream(uid uint16) (*stream.Stream, bool) {
	s, ok := c.byUID[uid]
	return s, ok
}

// BufferSize returns the size of the frame encode buffer
func (c *Channel) BufferSize() int { return len(c.buf) }

// Header returns the frame header state
func (c *Channel) Header() *FrameHeader { return c.header }

// MissedFrames returns the number of frames detected as lost
func (c *Channel) MissedFrames() uint64 { return c.header.MissedFrames() }

// LastHeader returns the metadata of the last received frame header
func (c *Channel) LastHeader() stream.SampleInfo { return c.header.Last() }

// AddSender registers a socket route the channel frames are sent through
func (c *Channel) AddSender(sender FrameSender) {
	c.senders = append(c.senders, sender)
}

// HasSamplesToSend reports whether an output stream has pending samples
func (c *Channel) HasSamplesToSend() bool {
	for _, s := range c.streams {
		if s.HasSamplesToSend() {
			return true
		}
	}
	return false
}

// Encode serializes the pending samples of the output streams into one frame.
// The returned slice aliases the channel buffer and is empty when nothing was
// pending. Samples that did not fit stay in their stacks.
func (c *Channel) Encode() ([]byte, error) {
	off, err := c.header.Encode(c.buf, timestamp.FromTime(c.clock()))
	if err != nil {
		return nil, err
	}
	start := off

	if c.cfg.Simple {
		n, err := c.streams[0].Encode(c.buf[off:])
		if err != nil {
			return nil, errors.Wrap(err, "Channel", "Encode", "encode stream "+c.streams[0].Name())
		}
		off += n
	} else {
		for _, s := range c.streams {
			if !s.HasSamplesToSend() {
				continue
			}
			if len(c.buf)-off <= streamHeaderSize {
				break
			}
			n, err := s.Encode(c.buf[off+streamHeaderSize:])
			if err != nil {
				if errors.Is(err, errors.ErrBufferTooSmall) && off > start {
					// the frame is full, the stream goes in the next one
					continue
				}
				return nil, errors.Wrap(err, "Channel", "Encode", "encode stream "+s.Name())
			}
			if n == 0 {
				continue
			}
			binary.BigEndian.PutUint16(c.buf[off:], s.UID())
			binary.BigEndian.PutUint16(c.buf[off+2:], uint16(n))
			off += streamHeaderSize + n
		}
	}

	if off == start {
		return c.buf[:0], nil
	}
	c.header.Commit()
	return c.buf[:off], nil
}

// Send emits a frame through every registered socket route. Failed sends are
// logged and reported, all routes are still attempted.
func (c *Channel) Send(frame []byte) error {
	var firstErr error
	for _, sender := range c.senders {
		if err := sender.SendFrame(frame); err != nil {
			c.logger.Error("Failed to send frame", "size", len(frame), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if c.metrics != nil {
		c.metrics.RecordFrameSent(c.cfg.Name)
	}
	return firstErr
}

// EncodeAndSend encodes and sends frames until every output stream is drained
func (c *Channel) EncodeAndSend() error {
	var firstErr error
	for c.HasSamplesToSend() {
		frame, err := c.Encode()
		if err != nil {
			return err
		}
		if len(frame) == 0 {
			break
		}
		if err := c.Send(frame); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Decode dispatches a received frame to the matching input streams.
//
// A bad header or a truncated stream block rejects the rest of the frame.
// Unknown UIDs are skipped since several channels may share a socket, and a
// stream failing to decode does not prevent its siblings from decoding.
func (c *Channel) Decode(frame []byte) error {
	off, err := c.header.Decode(frame)
	if err != nil {
		c.recordDecodeError()
		return err
	}
	info := c.header.Last()
	if c.metrics != nil {
		missed := c.header.MissedFrames()
		c.metrics.RecordFrameReceived(c.cfg.Name)
		c.metrics.RecordMissedFrames(c.cfg.Name, int(missed-c.reportedMissed))
		c.reportedMissed = missed
	}

	if c.cfg.Simple {
		s := c.streams[0]
		if !s.Direction().IsIn() {
			return nil
		}
		if err := s.Decode(frame[off:], info); err != nil {
			c.recordDecodeError()
			c.logger.Warn("Failed to decode stream", "stream", s.Name(), "error", err)
		}
		return nil
	}

	for off < len(frame) {
		if len(frame)-off < streamHeaderSize {
			c.recordDecodeError()
			return errors.WrapInvalid(
				fmt.Errorf("%w: %d bytes left for a stream header", errors.ErrTruncated, len(frame)-off),
				"Channel", "Decode", "decode stream header")
		}
		uid := binary.BigEndian.Uint16(frame[off:])
		size := int(binary.BigEndian.Uint16(frame[off+2:]))
		off += streamHeaderSize
		if len(frame)-off < size {
			c.recordDecodeError()
			return errors.WrapInvalid(
				fmt.Errorf("%w: stream %d declares %d bytes, %d left", errors.ErrTruncated, uid, size, len(frame)-off),
				"Channel", "Decode", "decode stream block")
		}
		payload := frame[off : off+size]
		off += size

		s, ok := c.byUID[uid]
		if !ok {
			c.logger.Debug("Skipping unknown stream", "uid", uid)
			continue
		}
		if !s.Direction().IsIn() {
			continue
		}
		if err := s.Decode(payload, info); err != nil {
			c.recordDecodeError()
			c.logger.Warn("Failed to decode stream", "stream", s.Name(), "error", err)
		}
	}
	return nil
}

func (c *Channel) recordDecodeError() {
	if c.metrics != nil {
		c.metrics.RecordDecodeError(c.cfg.Name)
	}
}
