package buffer

import (
	"fmt"
	"sync"

	"github.com/c360/ed247/errors"
)

// Ring is a FIFO over preallocated items with a drop-oldest overflow policy.
//
// The ring keeps maxItems+1 slots so that the write slot is always free: the
// producer fills NextWrite() in place then calls Increment(). When the ring already
// holds maxItems items, Increment advances both indices and the oldest item is lost.
// Ring is safe for use by one producer and one consumer.
type Ring[T any] struct {
	mu       sync.Mutex
	items    []T
	read     int
	write    int
	maxItems int
	stats    *Statistics    // ALWAYS initialized for observability
	metrics  *bufferMetrics // Optional Prometheus metrics
}

// NewRing creates a ring able to hold maxItems items, each slot built by newItem.
// Returns an error if maxItems is not positive or metrics registration fails.
func NewRing[T any](maxItems int, newItem func() T, options ...Option) (*Ring[T], error) {
	if maxItems <= 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("max items %d", maxItems), "buffer", "NewRing", "capacity check")
	}
	opts := applyOptions(options...)

	var metrics *bufferMetrics
	if opts.metricsReg != nil && opts.metricsScope != "" {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsScope)
		if err != nil {
			return nil, errors.Wrap(err, "buffer", "NewRing", "metrics registration")
		}
	}

	items := make([]T, maxItems+1)
	for i := range items {
		items[i] = newItem()
	}

	return &Ring[T]{
		items:    items,
		maxItems: maxItems,
		stats:    NewStatistics(),
		metrics:  metrics,
	}, nil
}

func (r *Ring[T]) sizeLocked() int {
	return (r.write - r.read + len(r.items)) % len(r.items)
}

// NextWrite returns the slot the next Increment will publish.
func (r *Ring[T]) NextWrite() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[r.write]
}

// Increment publishes the NextWrite slot and reports whether the ring is now full.
// If the ring was already full the oldest item is dropped.
func (r *Ring[T]) Increment() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.write = (r.write + 1) % len(r.items)
	if r.write == r.read {
		r.read = (r.read + 1) % len(r.items)

		r.stats.Overflow()
		r.stats.Drop()
		if r.metrics != nil {
			r.metrics.recordOverflow()
			r.metrics.recordDrop()
		}
	}

	size := r.sizeLocked()
	r.stats.Write()
	r.stats.UpdateSize(int64(size))
	if r.metrics != nil {
		r.metrics.recordWrite(size, r.maxItems)
	}

	return size == r.maxItems
}

// Front returns the oldest item without removing it.
func (r *Ring[T]) Front() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.read == r.write {
		var zero T
		return zero, false
	}
	return r.items[r.read], true
}

// Back returns the most recently published item without removing it.
func (r *Ring[T]) Back() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.read == r.write {
		var zero T
		return zero, false
	}
	return r.items[(r.write-1+len(r.items))%len(r.items)], true
}

// PopFront removes the oldest item and reports whether the ring is empty afterwards.
//
// Popping an empty ring returns the last written slot with empty=true; callers
// must check Size (or the empty flag of the previous pop) rather than the item.
// The returned item stays valid until the producer wraps around onto its slot.
func (r *Ring[T]) PopFront() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.read == r.write {
		return r.items[(r.write-1+len(r.items))%len(r.items)], true
	}

	item := r.items[r.read]
	r.read = (r.read + 1) % len(r.items)

	size := r.sizeLocked()
	r.stats.Read()
	r.stats.UpdateSize(int64(size))
	if r.metrics != nil {
		r.metrics.recordRead(size, r.maxItems)
	}

	return item, size == 0
}

// Size returns the current number of items.
func (r *Ring[T]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sizeLocked()
}

// Capacity returns the maximum number of items the ring can hold.
func (r *Ring[T]) Capacity() int {
	return r.maxItems // immutable, no lock needed
}

// Full returns true if the ring holds Capacity items.
func (r *Ring[T]) Full() bool {
	return r.Size() == r.maxItems
}

// Empty returns true if the ring holds no item.
func (r *Ring[T]) Empty() bool {
	return r.Size() == 0
}

// Clear drops every item without touching slot storage.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.read = r.write
	r.stats.UpdateSize(0)
	if r.metrics != nil {
		r.metrics.updateSize(0, r.maxItems)
	}
}

// Stats returns ring statistics (always available for observability).
func (r *Ring[T]) Stats() *Statistics {
	return r.stats
}

// Close unregisters the ring metrics. The ring stays usable without them;
// closing twice is a no-op.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.unregister()
		r.metrics = nil
	}
}
