package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/c360/ed247/errors"
)

// Protocol limits
const (
	// MaxFrameSize is the largest UDP payload a channel frame may use
	MaxFrameSize = 65508
	// DefaultSampleMaxNumber is used when a stream does not declare its depth
	DefaultSampleMaxNumber = 1
	// DefaultMulticastTTL is used when a multicast socket does not declare a TTL
	DefaultMulticastTTL = 1
	// A429SampleSize is the fixed size of an ARINC 429 word
	A429SampleSize = 4
	// AnalogSignalSize is the size of an ANALOG signal (float32)
	AnalogSignalSize = 4
	// DiscreteSignalSize is the size of a DISCRETE signal
	DiscreteSignalSize = 1
	// VNADLengthSize is the size of the per-signal length prefix of VNAD samples
	VNADLengthSize = 2
)

// StandardRevisionA is the only supported revision of the protocol
const StandardRevisionA = "A"

// Config is the validated configuration tree of one ED247 component
type Config struct {
	ComponentIdentifier uint16          `yaml:"component_identifier"`
	Name                string          `yaml:"name"`
	StandardRevision    string          `yaml:"standard_revision,omitempty"`
	Comment             string          `yaml:"comment,omitempty"`
	Channels            []ChannelConfig `yaml:"channels"`
}

// ChannelConfig describes a channel, its framing and its sockets
type ChannelConfig struct {
	Name         string             `yaml:"name"`
	Comment      string             `yaml:"comment,omitempty"`
	Simple       bool               `yaml:"simple,omitempty"`
	Header       HeaderConfig       `yaml:"header,omitempty"`
	FrameMaxSize int                `yaml:"frame_max_size,omitempty"`
	ComInterface ComInterfaceConfig `yaml:"com_interface"`
	Streams      []StreamConfig     `yaml:"streams"`
}

// HeaderConfig enables the frame header of a channel
type HeaderConfig struct {
	Enable             bool `yaml:"enable"`
	TransportTimestamp bool `yaml:"transport_timestamp,omitempty"`
}

// ComInterfaceConfig lists the sockets of a channel
type ComInterfaceConfig struct {
	UDPSockets []UDPSocketConfig `yaml:"udp_sockets"`
}

// UDPSocketConfig describes one UDP destination of a channel.
// Direction defaults to the union of the channel's stream directions.
type UDPSocketConfig struct {
	DstIP         string    `yaml:"dst_ip"`
	DstPort       int       `yaml:"dst_port"`
	SrcIP         string    `yaml:"src_ip,omitempty"`
	SrcPort       int       `yaml:"src_port,omitempty"`
	MulticastTTL  int       `yaml:"mc_ttl,omitempty"`
	MulticastIfIP string    `yaml:"mc_interface_ip,omitempty"`
	Direction     Direction `yaml:"direction,omitempty"`
}

// StreamConfig describes a stream of a channel
type StreamConfig struct {
	Name               string              `yaml:"name"`
	UID                uint16              `yaml:"uid"`
	Type               StreamType          `yaml:"type"`
	Direction          Direction           `yaml:"direction"`
	SampleMaxSizeBytes int                 `yaml:"sample_max_size_bytes,omitempty"`
	SampleMaxNumber    int                 `yaml:"sample_max_number,omitempty"`
	DataTimestamp      DataTimestampConfig `yaml:"data_timestamp,omitempty"`
	EnableMessageSize  *bool               `yaml:"enable_message_size,omitempty"`
	ICD                string              `yaml:"icd,omitempty"`
	Comment            string              `yaml:"comment,omitempty"`
	Signals            []SignalConfig      `yaml:"signals,omitempty"`
}

// DataTimestampConfig controls the per-sample data timestamp field
type DataTimestampConfig struct {
	Enable             bool `yaml:"enable"`
	EnableSampleOffset bool `yaml:"enable_sample_offset,omitempty"`
}

// SignalConfig describes a signal of a DISCRETE, ANALOG, NAD or VNAD stream.
// Fixed layouts are addressed by ByteOffset, VNAD signals by Position.
type SignalConfig struct {
	Name       string     `yaml:"name"`
	Type       SignalType `yaml:"type"`
	ByteOffset int        `yaml:"byte_offset,omitempty"`
	Position   *int       `yaml:"position,omitempty"`
	NADType    NADType    `yaml:"nad_type,omitempty"`
	Dimensions []int      `yaml:"dimensions,omitempty"`
	MaxLength  int        `yaml:"max_length,omitempty"`
	ICD        string     `yaml:"icd,omitempty"`
	Comment    string     `yaml:"comment,omitempty"`

	// Index is the scratch slot of the signal, assigned by Validate in layout order
	Index int `yaml:"-"`
}

// MessageSizeEnabled reports whether A664 samples carry a u16 size prefix
func (s *StreamConfig) MessageSizeEnabled() bool {
	if s.Type != StreamA664 {
		return false
	}
	return s.EnableMessageSize == nil || *s.EnableMessageSize
}

// SizePrefixWidth returns the width in bytes of the per-sample size prefix
func (s *StreamConfig) SizePrefixWidth() int {
	switch s.Type {
	case StreamA664:
		if s.MessageSizeEnabled() {
			return 2
		}
		return 0
	case StreamVNAD:
		return 2
	case StreamA825, StreamSerial, StreamAudio:
		return 1
	default:
		return 0
	}
}

// MaxPayloadSize returns the largest stream payload a full send stack can encode
func (s *StreamConfig) MaxPayloadSize() int {
	per := s.SampleMaxSizeBytes + s.SizePrefixWidth()
	if !s.DataTimestamp.Enable {
		return per * s.SampleMaxNumber
	}
	first := per + 8
	if s.SampleMaxNumber <= 1 {
		return first
	}
	rest := per
	if s.DataTimestamp.EnableSampleOffset {
		rest += 4
	}
	return first + rest*(s.SampleMaxNumber-1)
}

// ElementCount returns the number of NAD elements of the signal
func (s *SignalConfig) ElementCount() int {
	count := 1
	for _, d := range s.Dimensions {
		count *= d
	}
	return count
}

// Size returns the byte size of a fixed-layout signal, or the maximum data
// size of a VNAD signal (without its length prefix)
func (s *SignalConfig) Size() int {
	switch s.Type {
	case SignalDiscrete:
		return DiscreteSignalSize
	case SignalAnalog:
		return AnalogSignalSize
	case SignalNAD:
		return s.NADType.Size() * s.ElementCount()
	case SignalVNAD:
		return s.NADType.Size() * s.MaxLength
	default:
		return 0
	}
}

// HeaderSize returns the encoded size of the channel frame header
func (c *ChannelConfig) HeaderSize() int {
	if !c.Header.Enable {
		return 0
	}
	if c.Header.TransportTimestamp {
		return 12
	}
	return 4
}

// Load decodes and validates a configuration. Unknown fields are rejected.
// JSON content is accepted as well since it is valid YAML.
func Load(content []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil {
		if err == io.EOF {
			return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Load", "decode configuration")
		}
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Config", "Load", "decode configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads and validates a configuration file
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrMissingConfig, err),
			"Config", "LoadFile", "read configuration file")
	}
	return Load(data)
}

// Marshal encodes the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
