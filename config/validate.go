package config

import (
	"fmt"
	"net"
	"sort"

	"github.com/c360/ed247/errors"
)

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"Config", "Validate", "validate configuration")
}

// Validate checks the whole tree, applies defaults and derives the values the
// protocol stack relies on (signal indexes, signal stream sizes, socket directions).
// A failed validation leaves the configuration partially normalized.
func (c *Config) Validate() error {
	if c.StandardRevision == "" {
		c.StandardRevision = StandardRevisionA
	}
	if c.StandardRevision != StandardRevisionA {
		return errors.WrapInvalid(
			fmt.Errorf("%w: standard revision %q", errors.ErrUnsupportedConfig, c.StandardRevision),
			"Config", "Validate", "check standard revision")
	}
	if len(c.Channels) == 0 {
		return invalid("no channel declared")
	}

	channelNames := make(map[string]struct{}, len(c.Channels))
	streamNames := make(map[string]struct{})
	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.Name == "" {
			return invalid("channel #%d has no name", i)
		}
		if _, dup := channelNames[ch.Name]; dup {
			return invalid("duplicate channel name %q", ch.Name)
		}
		channelNames[ch.Name] = struct{}{}

		if err := ch.validate(streamNames); err != nil {
			return err
		}
	}
	return nil
}

func (c *ChannelConfig) validate(streamNames map[string]struct{}) error {
	if c.FrameMaxSize == 0 {
		c.FrameMaxSize = MaxFrameSize
	}
	if c.FrameMaxSize < 0 || c.FrameMaxSize > MaxFrameSize {
		return invalid("channel %q: frame_max_size %d out of range (max %d)", c.Name, c.FrameMaxSize, MaxFrameSize)
	}
	if c.Header.TransportTimestamp && !c.Header.Enable {
		return invalid("channel %q: transport timestamp requires the header", c.Name)
	}
	if len(c.Streams) == 0 {
		return invalid("channel %q: no stream declared", c.Name)
	}
	if c.Simple && len(c.Streams) != 1 {
		return invalid("channel %q: simple channel must contain exactly one stream, got %d", c.Name, len(c.Streams))
	}

	var streamDirections Direction
	uids := make(map[uint16]string, len(c.Streams))
	for i := range c.Streams {
		s := &c.Streams[i]
		if s.Name == "" {
			return invalid("channel %q: stream #%d has no name", c.Name, i)
		}
		if _, dup := streamNames[s.Name]; dup {
			return invalid("duplicate stream name %q", s.Name)
		}
		streamNames[s.Name] = struct{}{}
		if other, dup := uids[s.UID]; dup {
			return invalid("channel %q: streams %q and %q share uid %d", c.Name, other, s.Name, s.UID)
		}
		uids[s.UID] = s.Name

		if err := s.validate(); err != nil {
			return err
		}
		streamDirections |= s.Direction

		// one sample must always fit in a frame on its own
		single := c.HeaderSize() + s.SizePrefixWidth() + s.SampleMaxSizeBytes
		if !c.Simple {
			single += 4
		}
		if s.DataTimestamp.Enable {
			single += 8
		}
		if single > c.FrameMaxSize {
			return invalid("channel %q: stream %q sample does not fit in a %d bytes frame",
				c.Name, s.Name, c.FrameMaxSize)
		}
	}

	if len(c.ComInterface.UDPSockets) == 0 {
		return invalid("channel %q: no udp socket declared", c.Name)
	}
	for i := range c.ComInterface.UDPSockets {
		if err := c.ComInterface.UDPSockets[i].validate(c.Name, streamDirections); err != nil {
			return err
		}
	}
	return nil
}

func (s *StreamConfig) validate() error {
	if s.Direction == 0 {
		return invalid("stream %q: direction is required", s.Name)
	}
	if s.SampleMaxNumber == 0 {
		s.SampleMaxNumber = DefaultSampleMaxNumber
	}
	if s.SampleMaxNumber < 0 {
		return invalid("stream %q: negative sample_max_number", s.Name)
	}
	if s.DataTimestamp.EnableSampleOffset && !s.DataTimestamp.Enable {
		return invalid("stream %q: sample offset requires the data timestamp", s.Name)
	}
	if s.EnableMessageSize != nil && s.Type != StreamA664 {
		return invalid("stream %q: enable_message_size only applies to A664 streams", s.Name)
	}

	if s.Type.HasSignals() {
		if err := s.validateSignals(); err != nil {
			return err
		}
	} else if len(s.Signals) > 0 {
		return invalid("stream %q: %s streams carry no signals", s.Name, s.Type)
	}

	if s.Type == StreamA429 {
		if s.SampleMaxSizeBytes == 0 {
			s.SampleMaxSizeBytes = A429SampleSize
		}
		if s.SampleMaxSizeBytes != A429SampleSize {
			return invalid("stream %q: A429 samples are %d bytes", s.Name, A429SampleSize)
		}
	}
	if s.SampleMaxSizeBytes <= 0 {
		return invalid("stream %q: sample_max_size_bytes is required", s.Name)
	}

	switch s.SizePrefixWidth() {
	case 1:
		if s.SampleMaxSizeBytes > 0xFF {
			return invalid("stream %q: %s samples are limited to 255 bytes", s.Name, s.Type)
		}
	case 2:
		if s.SampleMaxSizeBytes > 0xFFFF {
			return invalid("stream %q: %s samples are limited to 65535 bytes", s.Name, s.Type)
		}
	}
	return nil
}

// validateSignals sorts the signals in layout order, assigns their index and
// checks that they tile the sample with no gap or overlap.
func (s *StreamConfig) validateSignals() error {
	if len(s.Signals) == 0 {
		return invalid("stream %q: %s stream without signals", s.Name, s.Type)
	}
	expected, _ := s.Type.SignalType()

	names := make(map[string]struct{}, len(s.Signals))
	for i := range s.Signals {
		sig := &s.Signals[i]
		if sig.Name == "" {
			return invalid("stream %q: signal #%d has no name", s.Name, i)
		}
		if _, dup := names[sig.Name]; dup {
			return invalid("stream %q: duplicate signal name %q", s.Name, sig.Name)
		}
		names[sig.Name] = struct{}{}
		if sig.Type != expected {
			return invalid("stream %q: signal %q is %s, expected %s", s.Name, sig.Name, sig.Type, expected)
		}
		if (sig.Type == SignalNAD || sig.Type == SignalVNAD) && sig.NADType == NADUnset {
			return invalid("stream %q: %s signal %q requires nad_type", s.Name, sig.Type, sig.Name)
		}
		for _, d := range sig.Dimensions {
			if d <= 0 {
				return invalid("stream %q: signal %q has a non positive dimension", s.Name, sig.Name)
			}
		}
		if sig.Type == SignalVNAD {
			if sig.MaxLength <= 0 {
				return invalid("stream %q: VNAD signal %q requires max_length", s.Name, sig.Name)
			}
			if sig.Size() > 0xFFFF {
				return invalid("stream %q: VNAD signal %q exceeds 65535 bytes", s.Name, sig.Name)
			}
		}
		if sig.ByteOffset < 0 {
			return invalid("stream %q: signal %q has a negative byte offset", s.Name, sig.Name)
		}
	}

	if s.Type == StreamVNAD {
		return s.layoutVNAD()
	}
	return s.layoutFixed()
}

func (s *StreamConfig) layoutFixed() error {
	sort.SliceStable(s.Signals, func(i, j int) bool {
		return s.Signals[i].ByteOffset < s.Signals[j].ByteOffset
	})

	end := 0
	for i := range s.Signals {
		sig := &s.Signals[i]
		if sig.ByteOffset < end {
			return invalid("stream %q: signal %q overlaps the previous signal", s.Name, sig.Name)
		}
		if sig.ByteOffset > end {
			return invalid("stream %q: gap of %d bytes before signal %q", s.Name, sig.ByteOffset-end, sig.Name)
		}
		sig.Index = i
		end = sig.ByteOffset + sig.Size()
	}

	if s.SampleMaxSizeBytes == 0 {
		s.SampleMaxSizeBytes = end
	}
	if s.SampleMaxSizeBytes != end {
		return invalid("stream %q: signals cover %d bytes, sample_max_size_bytes is %d",
			s.Name, end, s.SampleMaxSizeBytes)
	}
	return nil
}

func (s *StreamConfig) layoutVNAD() error {
	withPosition := 0
	for i := range s.Signals {
		if s.Signals[i].Position != nil {
			withPosition++
		}
	}
	if withPosition != 0 && withPosition != len(s.Signals) {
		return invalid("stream %q: either every VNAD signal declares a position or none does", s.Name)
	}

	if withPosition > 0 {
		sort.SliceStable(s.Signals, func(i, j int) bool {
			return *s.Signals[i].Position < *s.Signals[j].Position
		})
	}

	size := 0
	for i := range s.Signals {
		sig := &s.Signals[i]
		if sig.Position != nil && *sig.Position != i {
			return invalid("stream %q: VNAD positions must be 0..%d, signal %q has %d",
				s.Name, len(s.Signals)-1, sig.Name, *sig.Position)
		}
		sig.Index = i
		size += VNADLengthSize + sig.Size()
	}

	if s.SampleMaxSizeBytes == 0 {
		s.SampleMaxSizeBytes = size
	}
	if s.SampleMaxSizeBytes != size {
		return invalid("stream %q: VNAD signals need %d bytes, sample_max_size_bytes is %d",
			s.Name, size, s.SampleMaxSizeBytes)
	}
	return nil
}

func (u *UDPSocketConfig) validate(channel string, streamDirections Direction) error {
	dst := net.ParseIP(u.DstIP)
	if dst == nil || dst.To4() == nil {
		return invalid("channel %q: invalid dst_ip %q", channel, u.DstIP)
	}
	if u.DstPort <= 0 || u.DstPort > 0xFFFF {
		return invalid("channel %q: invalid dst_port %d", channel, u.DstPort)
	}
	if u.SrcIP != "" {
		if ip := net.ParseIP(u.SrcIP); ip == nil || ip.To4() == nil {
			return invalid("channel %q: invalid src_ip %q", channel, u.SrcIP)
		}
	}
	if u.SrcPort < 0 || u.SrcPort > 0xFFFF {
		return invalid("channel %q: invalid src_port %d", channel, u.SrcPort)
	}
	if u.MulticastIfIP != "" {
		if ip := net.ParseIP(u.MulticastIfIP); ip == nil || ip.To4() == nil {
			return invalid("channel %q: invalid mc_interface_ip %q", channel, u.MulticastIfIP)
		}
	}
	if u.MulticastTTL < 0 || u.MulticastTTL > 255 {
		return invalid("channel %q: invalid mc_ttl %d", channel, u.MulticastTTL)
	}
	if dst.IsMulticast() && u.MulticastTTL == 0 {
		u.MulticastTTL = DefaultMulticastTTL
	}
	if u.Direction == 0 {
		u.Direction = streamDirections
	}
	if u.Direction&^DirectionInOut != 0 {
		return invalid("channel %q: invalid socket direction %s", channel, u.Direction)
	}
	return nil
}

// IsMulticast reports whether the destination is a multicast group
func (u *UDPSocketConfig) IsMulticast() bool {
	ip := net.ParseIP(u.DstIP)
	return ip != nil && ip.IsMulticast()
}
