// Package buffer provides the fixed-capacity storage units of the ED247 stack.
//
// Two types are offered:
//   - Sample: a byte buffer allocated once with a fixed capacity and an explicit
//     size that never exceeds it
//   - Ring: a FIFO of preallocated items with a drop-oldest overflow policy, used as
//     the send stack and receive stack of every stream
//
// Neither type allocates after construction. Writing into a Ring is done in place:
//
//	slot := ring.NextWrite()
//	_ = slot.Copy(payload)
//	full := ring.Increment() // drops the oldest item if the ring was already full
//
// Reading pops the oldest item:
//
//	if ring.Size() > 0 {
//	    item, empty := ring.PopFront()
//	    ...
//	}
//
// Pushing past capacity is not an error. The oldest item is dropped, the drop is
// counted in Statistics, and Increment reports the ring as full.
//
// Statistics are always collected. Prometheus metrics are optional:
//
//	ring, err := buffer.NewRing(10, newSlot, buffer.WithMetrics(registry, "ecic-1/Label_recv"))
//	defer ring.Close() // releases the metrics
package buffer
