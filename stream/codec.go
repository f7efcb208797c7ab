package stream

import (
	"encoding/binary"
	"fmt"

	"github.com/c360/ed247/config"
	"github.com/c360/ed247/errors"
	"github.com/c360/ed247/pkg/timestamp"
)

// hostLittleEndian is true when numeric signal elements must be swapped to
// reach the big endian wire order.
var hostLittleEndian = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

// swapRegion is one run of same-size elements inside a fixed-layout sample
type swapRegion struct {
	offset   int
	elemSize int
	count    int
}

// codec holds the per-type encode/decode parameters selected at construction.
type codec struct {
	streamType config.StreamType
	prefix     int  // size prefix width: 0, 1 or 2 bytes
	exact      bool // samples must be exactly maxSize bytes
	padded     bool // samples are zero padded to maxSize on the wire
	maxSize    int

	timestamped bool
	offsets     bool

	// fixed layout regions (ANALOG, NAD) or VNAD element sizes in signal order
	regions   []swapRegion
	vnadElems []int
}

func newCodec(cfg *config.StreamConfig) codec {
	c := codec{
		streamType:  cfg.Type,
		prefix:      cfg.SizePrefixWidth(),
		maxSize:     cfg.SampleMaxSizeBytes,
		timestamped: cfg.DataTimestamp.Enable,
		offsets:     cfg.DataTimestamp.EnableSampleOffset,
	}

	switch cfg.Type {
	case config.StreamA429:
		c.exact = true
	case config.StreamA664:
		c.exact = !cfg.MessageSizeEnabled()
	case config.StreamDiscrete, config.StreamAnalog, config.StreamNAD:
		c.padded = true
	}

	switch cfg.Type {
	case config.StreamAnalog:
		for _, sig := range cfg.Signals {
			c.regions = append(c.regions, swapRegion{offset: sig.ByteOffset, elemSize: config.AnalogSignalSize, count: 1})
		}
	case config.StreamNAD:
		for _, sig := range cfg.Signals {
			c.regions = append(c.regions, swapRegion{
				offset: sig.ByteOffset, elemSize: sig.NADType.Size(), count: sig.ElementCount(),
			})
		}
	case config.StreamVNAD:
		for _, sig := range cfg.Signals {
			c.vnadElems = append(c.vnadElems, sig.NADType.Size())
		}
	}
	return c
}

// checkSampleSize validates the size of a sample before it is stored
func (c *codec) checkSampleSize(size int) error {
	if c.exact && size != c.maxSize {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s sample is %d bytes, expected %d", errors.ErrSampleSize, c.streamType, size, c.maxSize),
			"Stream", "checkSampleSize", "size check")
	}
	if size > c.maxSize {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s sample is %d bytes, max %d", errors.ErrSampleSize, c.streamType, size, c.maxSize),
			"Stream", "checkSampleSize", "size check")
	}
	return nil
}

// wireSize returns the encoded size of a sample payload (without timestamp)
func (c *codec) wireSize(size int) int {
	if c.padded {
		return c.maxSize
	}
	return c.prefix + size
}

// timestampSize returns the size of the data timestamp field of the n-th sample of a payload
func (c *codec) timestampSize(n int) int {
	switch {
	case !c.timestamped:
		return 0
	case n == 0:
		return timestamp.Size
	case c.offsets:
		return timestamp.OffsetSize
	default:
		return 0
	}
}

// swap converts the numeric elements of a sample between host and wire order.
// It is its own inverse. Samples of non numeric types are left untouched.
func (c *codec) swap(data []byte) error {
	if !hostLittleEndian {
		if c.streamType == config.StreamVNAD {
			return c.walkVNAD(data, nil)
		}
		return nil
	}
	switch c.streamType {
	case config.StreamAnalog, config.StreamNAD:
		for _, r := range c.regions {
			end := r.offset + r.elemSize*r.count
			if end > len(data) {
				end = len(data)
			}
			if r.offset >= end {
				continue
			}
			SwapElements(data[r.offset:end], r.elemSize)
		}
		return nil
	case config.StreamVNAD:
		return c.walkVNAD(data, SwapElements)
	default:
		return nil
	}
}

// walkVNAD checks the [u16 length][elements] layout of a VNAD sample and
// applies fn to every signal's element bytes
func (c *codec) walkVNAD(data []byte, fn func([]byte, int)) error {
	off := 0
	for i, elem := range c.vnadElems {
		if off == len(data) {
			return nil
		}
		if off+2 > len(data) {
			return fmt.Errorf("%w: VNAD signal #%d length prefix truncated", errors.ErrInvalidData, i)
		}
		n := int(binary.BigEndian.Uint16(data[off:]))
		off += 2
		if off+n > len(data) {
			return fmt.Errorf("%w: VNAD signal #%d declares %d bytes, %d left", errors.ErrTruncated, i, n, len(data)-off)
		}
		if n%elem != 0 {
			return fmt.Errorf("%w: VNAD signal #%d size %d is not a multiple of %d", errors.ErrInvalidData, i, n, elem)
		}
		if fn != nil {
			fn(data[off:off+n], elem)
		}
		off += n
	}
	if off != len(data) {
		return fmt.Errorf("%w: %d trailing bytes after VNAD signals", errors.ErrInvalidData, len(data)-off)
	}
	return nil
}

// SwapElements reverses the byte order of every elemSize-byte element of b in place.
// Trailing bytes that do not form a whole element are left untouched.
func SwapElements(b []byte, elemSize int) {
	switch elemSize {
	case 2:
		for i := 0; i+2 <= len(b); i += 2 {
			b[i], b[i+1] = b[i+1], b[i]
		}
	case 4:
		for i := 0; i+4 <= len(b); i += 4 {
			binary.BigEndian.PutUint32(b[i:], binary.LittleEndian.Uint32(b[i:]))
		}
	case 8:
		for i := 0; i+8 <= len(b); i += 8 {
			binary.BigEndian.PutUint64(b[i:], binary.LittleEndian.Uint64(b[i:]))
		}
	}
}

func putSizePrefix(dst []byte, width, size int) {
	switch width {
	case 1:
		dst[0] = byte(size)
	case 2:
		binary.BigEndian.PutUint16(dst, uint16(size))
	}
}

func readSizePrefix(src []byte, width int) int {
	switch width {
	case 1:
		return int(src[0])
	case 2:
		return int(binary.BigEndian.Uint16(src))
	default:
		return 0
	}
}
