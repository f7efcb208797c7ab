package config

import (
	"fmt"
	"strings"
)

// StreamType identifies the protocol carried by a stream. The set is closed.
type StreamType int

// Stream types
const (
	StreamA429 StreamType = iota
	StreamA664
	StreamA825
	StreamSerial
	StreamAudio
	StreamDiscrete
	StreamAnalog
	StreamNAD
	StreamVNAD
)

var streamTypeNames = map[StreamType]string{
	StreamA429:     "A429",
	StreamA664:     "A664",
	StreamA825:     "A825",
	StreamSerial:   "SERIAL",
	StreamAudio:    "AUDIO",
	StreamDiscrete: "DISCRETE",
	StreamAnalog:   "ANALOG",
	StreamNAD:      "NAD",
	StreamVNAD:     "VNAD",
}

// String returns the configuration name of the stream type
func (t StreamType) String() string {
	if name, ok := streamTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("StreamType(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler
func (t StreamType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, case-insensitive
func (t *StreamType) UnmarshalText(text []byte) error {
	s := strings.ToUpper(strings.TrimSpace(string(text)))
	for k, name := range streamTypeNames {
		if name == s {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown stream type %q", string(text))
}

// HasSignals reports whether streams of this type carry a signal layout
func (t StreamType) HasSignals() bool {
	switch t {
	case StreamDiscrete, StreamAnalog, StreamNAD, StreamVNAD:
		return true
	default:
		return false
	}
}

// SignalType returns the only signal type accepted by a signal-bearing stream type
func (t StreamType) SignalType() (SignalType, bool) {
	switch t {
	case StreamDiscrete:
		return SignalDiscrete, true
	case StreamAnalog:
		return SignalAnalog, true
	case StreamNAD:
		return SignalNAD, true
	case StreamVNAD:
		return SignalVNAD, true
	default:
		return 0, false
	}
}

// Direction is the exchange direction of a stream or socket
type Direction int

// Directions
const (
	DirectionIn Direction = 1 << iota
	DirectionOut
	DirectionInOut = DirectionIn | DirectionOut
)

// String returns the configuration name of the direction
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "In"
	case DirectionOut:
		return "Out"
	case DirectionInOut:
		return "InOut"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// MarshalText implements encoding.TextMarshaler
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, case-insensitive
func (d *Direction) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "in":
		*d = DirectionIn
	case "out":
		*d = DirectionOut
	case "inout", "in_out", "in-out":
		*d = DirectionInOut
	default:
		return fmt.Errorf("unknown direction %q", string(text))
	}
	return nil
}

// IsIn reports whether the direction includes reception
func (d Direction) IsIn() bool { return d&DirectionIn != 0 }

// IsOut reports whether the direction includes emission
func (d Direction) IsOut() bool { return d&DirectionOut != 0 }

// SignalType identifies the layout of a signal inside its stream sample
type SignalType int

// Signal types
const (
	SignalDiscrete SignalType = iota
	SignalAnalog
	SignalNAD
	SignalVNAD
)

var signalTypeNames = map[SignalType]string{
	SignalDiscrete: "DISCRETE",
	SignalAnalog:   "ANALOG",
	SignalNAD:      "NAD",
	SignalVNAD:     "VNAD",
}

// String returns the configuration name of the signal type
func (t SignalType) String() string {
	if name, ok := signalTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SignalType(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler
func (t SignalType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, case-insensitive
func (t *SignalType) UnmarshalText(text []byte) error {
	s := strings.ToUpper(strings.TrimSpace(string(text)))
	for k, name := range signalTypeNames {
		if name == s {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown signal type %q", string(text))
}

// NADType is the element type of NAD and VNAD signals
type NADType int

// NAD element types. NADUnset is the value of a signal configured without
// nad_type and never passes validation.
const (
	NADUnset NADType = iota
	NADInt8
	NADInt16
	NADInt32
	NADInt64
	NADUint8
	NADUint16
	NADUint32
	NADUint64
	NADFloat32
	NADFloat64
)

var nadTypeNames = map[NADType]string{
	NADInt8:    "int8",
	NADInt16:   "int16",
	NADInt32:   "int32",
	NADInt64:   "int64",
	NADUint8:   "uint8",
	NADUint16:  "uint16",
	NADUint32:  "uint32",
	NADUint64:  "uint64",
	NADFloat32: "float32",
	NADFloat64: "float64",
}

// String returns the configuration name of the NAD type
func (t NADType) String() string {
	if name, ok := nadTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("NADType(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler
func (t NADType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, case-insensitive
func (t *NADType) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for k, name := range nadTypeNames {
		if name == s {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown nad type %q", string(text))
}

// Size returns the size in bytes of one element
func (t NADType) Size() int {
	switch t {
	case NADInt8, NADUint8:
		return 1
	case NADInt16, NADUint16:
		return 2
	case NADInt32, NADUint32, NADFloat32:
		return 4
	case NADInt64, NADUint64, NADFloat64:
		return 8
	default:
		return 0
	}
}
