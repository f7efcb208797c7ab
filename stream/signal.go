package stream

import "github.com/c360/ed247/config"

// Signal is a typed field inside the samples of a DISCRETE, ANALOG, NAD or VNAD
// stream. It owns no data; values go through the stream Assistant.
type Signal struct {
	cfg    config.SignalConfig
	stream *Stream
}

// Name returns the signal name
func (s *Signal) Name() string { return s.cfg.Name }

// Type returns the signal type
func (s *Signal) Type() config.SignalType { return s.cfg.Type }

// ByteOffset returns the offset of a fixed-layout signal in the sample
func (s *Signal) ByteOffset() int { return s.cfg.ByteOffset }

// Index returns the signal rank in layout order
func (s *Signal) Index() int { return s.cfg.Index }

// NADType returns the element type of NAD and VNAD signals
func (s *Signal) NADType() config.NADType { return s.cfg.NADType }

// Dimensions returns the NAD array dimensions
func (s *Signal) Dimensions() []int {
	out := make([]int, len(s.cfg.Dimensions))
	copy(out, s.cfg.Dimensions)
	return out
}

// MaxLength returns the maximum element count of a VNAD signal
func (s *Signal) MaxLength() int { return s.cfg.MaxLength }

// Size returns the byte size of a fixed-layout signal, or the maximum data
// size of a VNAD signal
func (s *Signal) Size() int { return s.cfg.Size() }

// ElementSize returns the byte size of one numeric element of the signal
func (s *Signal) ElementSize() int {
	switch s.cfg.Type {
	case config.SignalDiscrete:
		return config.DiscreteSignalSize
	case config.SignalAnalog:
		return config.AnalogSignalSize
	default:
		return s.cfg.NADType.Size()
	}
}

// Stream returns the stream the signal belongs to
func (s *Signal) Stream() *Stream { return s.stream }

// Config returns a copy of the signal configuration
func (s *Signal) Config() config.SignalConfig { return s.cfg }
