// Package timestamp provides the ED247 timestamp representation and its arithmetic.
//
// An ED247 timestamp is two unsigned 32-bit fields: seconds since the Unix epoch and
// a nanosecond offset within that second. It is the unit of the Data-Timestamp field
// of stream samples and of the transport timestamp of the frame header.
//
// Zero Value Semantics:
//   - The zero Timestamp means "not set"; it is what samples carry when a stream has
//     no data timestamp or a frame has no header.
//
// Usage Examples:
//
//	ts := timestamp.FromTime(time.Now())
//	next := ts.AddNanos(250_000)      // carries into EpochS when needed
//	delta, ok := next.Sub(ts)         // signed nanoseconds, ok=false if outside int32
package timestamp

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Size is the wire size of a full timestamp (u32 epoch_s + u32 offset_ns).
const Size = 8

// OffsetSize is the wire size of a signed nanosecond offset.
const OffsetSize = 4

const nanosPerSecond = int64(time.Second)

// Timestamp is an ED247 timestamp.
type Timestamp struct {
	EpochS   uint32 `json:"epoch_s"`
	OffsetNs uint32 `json:"offset_ns"`
}

// FromTime converts a time.Time to a Timestamp.
// Returns the zero Timestamp for the zero time.
func FromTime(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{EpochS: uint32(t.Unix()), OffsetNs: uint32(t.Nanosecond())}
}

// Time converts the Timestamp to a time.Time in UTC.
// Returns zero time if the timestamp is not set.
func (ts Timestamp) Time() time.Time {
	if ts.IsZero() {
		return time.Time{}
	}
	return time.Unix(int64(ts.EpochS), int64(ts.OffsetNs)).UTC()
}

// IsZero reports whether the timestamp is unset.
func (ts Timestamp) IsZero() bool {
	return ts.EpochS == 0 && ts.OffsetNs == 0
}

// Nanos returns the timestamp as nanoseconds since the epoch.
func (ts Timestamp) Nanos() int64 {
	return int64(ts.EpochS)*nanosPerSecond + int64(ts.OffsetNs)
}

// AddNanos returns ts shifted by a signed nanosecond offset, normalizing the
// nanosecond field into [0, 1s) and carrying into (or borrowing from) EpochS.
func (ts Timestamp) AddNanos(offset int64) Timestamp {
	total := ts.Nanos() + offset
	if total < 0 {
		total = 0
	}
	return Timestamp{
		EpochS:   uint32(total / nanosPerSecond),
		OffsetNs: uint32(total % nanosPerSecond),
	}
}

// Sub returns ts - base in nanoseconds and whether it fits the int32 wire offset.
func (ts Timestamp) Sub(base Timestamp) (int32, bool) {
	delta := ts.Nanos() - base.Nanos()
	if delta < math.MinInt32 || delta > math.MaxInt32 {
		return 0, false
	}
	return int32(delta), true
}

// Put writes the timestamp in network byte order into b, which must hold Size bytes.
func (ts Timestamp) Put(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], ts.EpochS)
	binary.BigEndian.PutUint32(b[4:8], ts.OffsetNs)
}

// Read parses a network byte order timestamp from b, which must hold Size bytes.
func Read(b []byte) Timestamp {
	return Timestamp{
		EpochS:   binary.BigEndian.Uint32(b[0:4]),
		OffsetNs: binary.BigEndian.Uint32(b[4:8]),
	}
}

// String formats the timestamp as "epoch_s.offset_ns".
func (ts Timestamp) String() string {
	return fmt.Sprintf("%d.%09d", ts.EpochS, ts.OffsetNs)
}

// Format converts the timestamp to an RFC3339Nano string for display.
// Returns empty string if the timestamp is not set.
func Format(ts Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Time().Format(time.RFC3339Nano)
}
