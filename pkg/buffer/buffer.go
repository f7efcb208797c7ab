package buffer

import (
	"fmt"

	"github.com/c360/ed247/errors"
)

// Sample is a fixed-capacity byte buffer with an explicit size.
// Its storage is allocated once and never reallocated.
type Sample struct {
	data []byte
	size int
}

// NewSample creates a sample allocated with the given capacity.
func NewSample(capacity int) *Sample {
	s := &Sample{}
	if capacity > 0 {
		s.data = make([]byte, capacity)
	}
	return s
}

// Allocate performs the one-time allocation of the sample storage.
// Fails if the sample is already allocated or capacity is 0.
func (s *Sample) Allocate(capacity int) error {
	if s.data != nil {
		return errors.WrapInvalid(errors.ErrAlreadyAllocated, "Sample", "Allocate", "allocation")
	}
	if capacity <= 0 {
		return errors.WrapInvalid(fmt.Errorf("capacity %d", capacity), "Sample", "Allocate", "capacity check")
	}
	s.data = make([]byte, capacity)
	s.size = 0
	return nil
}

// Allocated reports whether the sample storage exists.
func (s *Sample) Allocated() bool {
	return s.data != nil
}

// Copy replaces the sample content with src.
// Fails without writing anything if src does not fit the capacity.
func (s *Sample) Copy(src []byte) error {
	if len(src) > len(s.data) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %d bytes exceeds capacity %d", errors.ErrSampleSize, len(src), len(s.data)),
			"Sample", "Copy", "capacity check")
	}
	s.size = copy(s.data, src)
	return nil
}

// SetSize sets the number of meaningful bytes after an in-place write into Buffer().
func (s *Sample) SetSize(size int) error {
	if size < 0 || size > len(s.data) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: size %d outside [0, %d]", errors.ErrSampleSize, size, len(s.data)),
			"Sample", "SetSize", "capacity check")
	}
	s.size = size
	return nil
}

// Reset empties the sample without releasing its storage.
func (s *Sample) Reset() {
	s.size = 0
}

// Bytes returns the meaningful content of the sample.
// The slice aliases the sample storage and is valid until the next write.
func (s *Sample) Bytes() []byte {
	return s.data[:s.size]
}

// Buffer returns the whole storage, for in-place writes followed by SetSize.
func (s *Sample) Buffer() []byte {
	return s.data
}

// Size returns the number of meaningful bytes.
func (s *Sample) Size() int {
	return s.size
}

// Capacity returns the allocated capacity.
func (s *Sample) Capacity() int {
	return len(s.data)
}

// Empty reports whether the sample holds no byte.
func (s *Sample) Empty() bool {
	return s.size == 0
}
