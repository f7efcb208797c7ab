package stream

import (
	"encoding/binary"
	"fmt"

	"github.com/c360/ed247/config"
	"github.com/c360/ed247/errors"
	"github.com/c360/ed247/pkg/buffer"
	"github.com/c360/ed247/pkg/timestamp"
)

// Assistant scatters signal values into one stream sample and gathers them back.
//
// Each signal has a scratch sample indexed by Signal.Index. Write fills the
// scratch sample of an output stream, Push assembles and pushes them; Pop
// decodes a received sample into the scratch samples that Read returns.
type Assistant struct {
	stream  *Stream
	scratch []*buffer.Sample
	written []bool
	encoded []byte
	strict  bool
}

func newAssistant(s *Stream, strict bool) *Assistant {
	a := &Assistant{
		stream:  s,
		scratch: make([]*buffer.Sample, len(s.signals)),
		written: make([]bool, len(s.signals)),
		encoded: make([]byte, s.cfg.SampleMaxSizeBytes),
		strict:  strict,
	}
	for _, sig := range s.signals {
		scratch := buffer.NewSample(sig.Size())
		if sig.cfg.Type != config.SignalVNAD {
			// fixed-layout signals always hold their full width
			_ = scratch.SetSize(sig.Size())
		}
		a.scratch[sig.cfg.Index] = scratch
	}
	return a
}

// Stream returns the assisted stream
func (a *Assistant) Stream() *Stream { return a.stream }

func (a *Assistant) checkSignal(sig *Signal, method string) error {
	if sig == nil || sig.stream != a.stream {
		return errors.WrapInvalid(
			fmt.Errorf("%w: signal does not belong to stream %q", errors.ErrNotFound, a.stream.cfg.Name),
			"Assistant", method, "signal check")
	}
	return nil
}

// Write stores the value of a signal for the next Push.
// Fixed-layout signals take exactly Signal.Size bytes; VNAD signals take a
// whole number of elements up to max_length.
func (a *Assistant) Write(sig *Signal, data []byte) error {
	if !a.stream.cfg.Direction.IsOut() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: stream %q is %s", errors.ErrDirection, a.stream.cfg.Name, a.stream.cfg.Direction),
			"Assistant", "Write", "direction check")
	}
	if err := a.checkSignal(sig, "Write"); err != nil {
		return err
	}

	if sig.cfg.Type == config.SignalVNAD {
		if len(data) > sig.Size() || len(data)%sig.ElementSize() != 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: VNAD signal %q accepts up to %d elements of %d bytes, got %d bytes",
					errors.ErrSampleSize, sig.cfg.Name, sig.cfg.MaxLength, sig.ElementSize(), len(data)),
				"Assistant", "Write", "size check")
		}
	} else if len(data) != sig.Size() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: signal %q is %d bytes, got %d", errors.ErrSampleSize, sig.cfg.Name, sig.Size(), len(data)),
			"Assistant", "Write", "size check")
	}

	if err := a.scratch[sig.cfg.Index].Copy(data); err != nil {
		return err
	}
	a.written[sig.cfg.Index] = true
	return nil
}

// Read returns the value of a signal decoded by the last Pop.
// The slice aliases the scratch sample and is valid until the next Pop.
func (a *Assistant) Read(sig *Signal) ([]byte, error) {
	if !a.stream.cfg.Direction.IsIn() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: stream %q is %s", errors.ErrDirection, a.stream.cfg.Name, a.stream.cfg.Direction),
			"Assistant", "Read", "direction check")
	}
	if err := a.checkSignal(sig, "Read"); err != nil {
		return nil, err
	}
	return a.scratch[sig.cfg.Index].Bytes(), nil
}

// Encode assembles the scratch samples into one stream sample.
// Signals never written are sent with their scratch content (zero at start)
// and logged, unless the assistant is strict.
func (a *Assistant) Encode() ([]byte, error) {
	n := 0
	for _, sig := range a.stream.signals {
		idx := sig.cfg.Index
		if !a.written[idx] {
			if a.strict {
				return nil, errors.WrapInvalid(
					fmt.Errorf("%w: signal %q was never written", errors.ErrNoData, sig.cfg.Name),
					"Assistant", "Encode", "strict signal check")
			}
			a.stream.logger.Warn("Signal never written before push", "signal", sig.cfg.Name)
		}

		data := a.scratch[idx].Bytes()
		if sig.cfg.Type == config.SignalVNAD {
			binary.BigEndian.PutUint16(a.encoded[n:], uint16(len(data)))
			n += config.VNADLengthSize
			n += copy(a.encoded[n:], data)
			continue
		}
		copy(a.encoded[sig.cfg.ByteOffset:], data)
		if end := sig.cfg.ByteOffset + len(data); end > n {
			n = end
		}
	}
	return a.encoded[:n], nil
}

// Push encodes the signals and pushes the result into the stream send stack
func (a *Assistant) Push(dataTimestamp *timestamp.Timestamp) (full bool, err error) {
	if !a.stream.cfg.Direction.IsOut() {
		return false, errors.WrapInvalid(
			fmt.Errorf("%w: stream %q is %s", errors.ErrDirection, a.stream.cfg.Name, a.stream.cfg.Direction),
			"Assistant", "Push", "direction check")
	}
	data, err := a.Encode()
	if err != nil {
		return false, err
	}
	return a.stream.PushSample(data, dataTimestamp)
}

// Decode splits a stream sample into the scratch samples
func (a *Assistant) Decode(data []byte) error {
	off := 0
	for _, sig := range a.stream.signals {
		scratch := a.scratch[sig.cfg.Index]
		if sig.cfg.Type == config.SignalVNAD {
			if off == len(data) {
				scratch.Reset()
				continue
			}
			if len(data)-off < config.VNADLengthSize {
				return a.truncated(sig)
			}
			size := int(binary.BigEndian.Uint16(data[off:]))
			off += config.VNADLengthSize
			if len(data)-off < size || size > scratch.Capacity() {
				return a.truncated(sig)
			}
			if err := scratch.Copy(data[off : off+size]); err != nil {
				return err
			}
			off += size
			continue
		}

		end := sig.cfg.ByteOffset + sig.Size()
		if end > len(data) {
			return a.truncated(sig)
		}
		if err := scratch.Copy(data[sig.cfg.ByteOffset:end]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assistant) truncated(sig *Signal) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: signal %q in stream %q", errors.ErrTruncated, sig.cfg.Name, a.stream.cfg.Name),
		"Assistant", "Decode", "decode signal")
}

// Pop pops the oldest received sample and decodes it into the scratch samples.
// It returns errors.ErrNoData when the receive stack is empty.
func (a *Assistant) Pop() (sample *StreamSample, empty bool, err error) {
	if !a.stream.cfg.Direction.IsIn() {
		return nil, true, errors.WrapInvalid(
			fmt.Errorf("%w: stream %q is %s", errors.ErrDirection, a.stream.cfg.Name, a.stream.cfg.Direction),
			"Assistant", "Pop", "direction check")
	}
	sample, empty, err = a.stream.PopSample()
	if err != nil {
		return nil, empty, err
	}
	if err := a.Decode(sample.Bytes()); err != nil {
		return sample, empty, err
	}
	return sample, empty, nil
}

// Number is the set of element types of numeric signals
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// WriteValues writes numeric values in host order into a signal.
// The element type must match the signal element size.
func WriteValues[T Number](a *Assistant, sig *Signal, values ...T) error {
	var zero T
	if err := checkElement(sig, binary.Size(zero), "WriteValues"); err != nil {
		return err
	}
	data, err := binary.Append(make([]byte, 0, len(values)*binary.Size(zero)), binary.NativeEndian, values)
	if err != nil {
		return errors.WrapInvalid(err, "Assistant", "WriteValues", "encode values")
	}
	return a.Write(sig, data)
}

// ReadValues reads the numeric values of a signal decoded by the last Pop
func ReadValues[T Number](a *Assistant, sig *Signal) ([]T, error) {
	var zero T
	if err := checkElement(sig, binary.Size(zero), "ReadValues"); err != nil {
		return nil, err
	}
	data, err := a.Read(sig)
	if err != nil {
		return nil, err
	}
	values := make([]T, len(data)/binary.Size(zero))
	if _, err := binary.Decode(data, binary.NativeEndian, values); err != nil {
		return nil, errors.WrapInvalid(err, "Assistant", "ReadValues", "decode values")
	}
	return values, nil
}

func checkElement(sig *Signal, size int, method string) error {
	if sig == nil {
		return errors.WrapInvalid(errors.ErrNotFound, "Assistant", method, "signal check")
	}
	if size != sig.ElementSize() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: signal %q has %d byte elements, value type has %d",
				errors.ErrSampleSize, sig.cfg.Name, sig.ElementSize(), size),
			"Assistant", method, "element check")
	}
	return nil
}

// WriteFloat32 writes the value of an ANALOG signal
func (a *Assistant) WriteFloat32(sig *Signal, v float32) error {
	return WriteValues(a, sig, v)
}

// ReadFloat32 reads the value of an ANALOG signal
func (a *Assistant) ReadFloat32(sig *Signal) (float32, error) {
	values, err := ReadValues[float32](a, sig)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, errors.WrapTransient(errors.ErrNoData, "Assistant", "ReadFloat32", "read value")
	}
	return values[0], nil
}

// WriteUint8 writes the value of a DISCRETE signal
func (a *Assistant) WriteUint8(sig *Signal, v uint8) error {
	return WriteValues(a, sig, v)
}

// ReadUint8 reads the value of a DISCRETE signal
func (a *Assistant) ReadUint8(sig *Signal) (uint8, error) {
	values, err := ReadValues[uint8](a, sig)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, errors.WrapTransient(errors.ErrNoData, "Assistant", "ReadUint8", "read value")
	}
	return values[0], nil
}
