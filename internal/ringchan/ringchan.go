// Package ringchan provides a bounded channel with overwrite-oldest semantics.
//
// It is used where a callback-driven producer (a BLE notification handler) must
// hand samples to a polling consumer without ever blocking the producer.
package ringchan

import "sync/atomic"

// Ring wraps a buffered channel. When the buffer is full, Send discards the
// oldest element instead of blocking.
//
//	r := ringchan.New[Sample](16)
//
//	// producer callback
//	r.Send(sample)
//
//	// polling consumer
//	if s, ok := r.TryReceive(); ok {
//	    ...
//	}
type Ring[T any] struct {
	ch      chan T
	closed  atomic.Bool
	metrics Metrics
}

// New creates a Ring with the given capacity. Panics if capacity is not positive.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// Send inserts v, dropping the oldest buffered element if needed.
// It reports whether an element was dropped. Sends after Close are discarded.
func (r *Ring[T]) Send(v T) bool {
	if r.closed.Load() {
		return false
	}

	dropped := false
	for {
		select {
		case r.ch <- v:
			atomic.AddInt64(&r.metrics.Written, 1)
			return dropped
		default:
		}

		select {
		case <-r.ch:
			atomic.AddInt64(&r.metrics.Overwritten, 1)
			dropped = true
		default:
			// a consumer drained the buffer concurrently; retry the send
		}
	}
}

// TryReceive returns the oldest buffered element without blocking.
func (r *Ring[T]) TryReceive() (T, bool) {
	select {
	case v, ok := <-r.ch:
		if ok {
			atomic.AddInt64(&r.metrics.Processed, 1)
		}
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// C exposes the underlying channel for select statements. Reads through C are
// not counted in Metrics.Processed.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	return len(r.ch)
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return cap(r.ch)
}

// Close marks the ring closed. Buffered elements stay readable via TryReceive.
// The underlying channel is not closed, so a late producer callback never panics.
func (r *Ring[T]) Close() {
	r.closed.Store(true)
}

// GetMetrics returns a snapshot of the counters.
func (r *Ring[T]) GetMetrics() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&r.metrics.Processed),
		Written:     atomic.LoadInt64(&r.metrics.Written),
		Overwritten: atomic.LoadInt64(&r.metrics.Overwritten),
	}
}

// Metrics tracks ring activity with atomic counters.
type Metrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
}
