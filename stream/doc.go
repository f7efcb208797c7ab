// Package stream implements ED247 streams: typed, directional exchange units
// with preallocated send and receive stacks and the per-type payload codecs.
//
// # Payload layout
//
// A stream payload is a sequence of samples. Each sample is written as:
//
//	[data timestamp][size prefix][sample bytes]
//
// The data timestamp is present when enabled: a full timestamp (u32 seconds,
// u32 nanoseconds) for the first sample of the payload, then either a signed
// i32 nanosecond offset from that first timestamp (sample offsets enabled) or
// nothing. The size prefix is a u16 for A664 (message size enabled) and VNAD,
// a u8 for A825, SERIAL and AUDIO, and absent for A429, DISCRETE, ANALOG and
// NAD, whose samples always occupy sample_max_size_bytes on the wire.
//
// ANALOG, NAD and VNAD elements are stored in host order in the stacks and
// travel in network order.
//
// # Signals
//
// DISCRETE, ANALOG, NAD and VNAD streams carry signals. The stream Assistant
// writes signal values into one sample and reads them back:
//
//	a, _ := s.Assistant()
//	speed, _ := s.Signal("Speed")
//	_ = stream.WriteValues(a, speed, float32(250.5))
//	_, _ = a.Push(nil)
package stream
