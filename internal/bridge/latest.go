// Package bridge carries values from the blocking sensor goroutine to the
// asynchronous consumer goroutine and broadcasts shutdown to both.
package bridge

import (
	"sync"
	"sync/atomic"
)

// Latest is a single-slot, latest-value-wins cell.
//
// Producers never block: Publish overwrites any value the consumer has not taken yet.
// Consumers wait on Changed and then call Take to get the newest unseen value.
//
//	cell := bridge.NewLatest[heartrate.BeatEvent]()
//
//	// producer
//	cell.Publish(event)
//
//	// consumer
//	select {
//	case <-cell.Changed():
//	    if v, ok := cell.Take(); ok {
//	        handle(v)
//	    }
//	case <-done:
//	}
//
// Changed may fire spuriously after a Take already returned the newest value;
// Take then reports false.
type Latest[T any] struct {
	mu     sync.Mutex
	value  T
	gen    uint64 // incremented on every Publish
	seen   uint64 // gen of the last value returned by Take
	notify chan struct{}

	metrics Metrics
}

// NewLatest creates an empty cell.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{notify: make(chan struct{}, 1)}
}

// Publish stores v as the current value and wakes the consumer.
func (l *Latest[T]) Publish(v T) {
	l.mu.Lock()
	if l.gen != l.seen {
		l.metrics.addOverwritten()
	}
	l.value = v
	l.gen++
	l.mu.Unlock()

	l.metrics.addPublished()

	select {
	case l.notify <- struct{}{}:
	default:
		// a wake-up is already pending
	}
}

// Changed returns a channel that receives after each Publish.
// Multiple publishes may coalesce into a single receive.
func (l *Latest[T]) Changed() <-chan struct{} {
	return l.notify
}

// Take returns the newest value not yet returned by Take.
// It reports false when nothing new was published since the last Take.
func (l *Latest[T]) Take() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.gen == l.seen {
		var zero T
		return zero, false
	}
	l.seen = l.gen
	l.metrics.addTaken()
	return l.value, true
}

// Load returns the current value without marking it as seen.
// It reports false before the first Publish.
func (l *Latest[T]) Load() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.gen > 0
}

// GetMetrics returns a snapshot of the cell counters.
func (l *Latest[T]) GetMetrics() Metrics {
	return Metrics{
		Published:   atomic.LoadInt64(&l.metrics.Published),
		Overwritten: atomic.LoadInt64(&l.metrics.Overwritten),
		Taken:       atomic.LoadInt64(&l.metrics.Taken),
	}
}

// Metrics counts cell activity. Overwritten is the number of values replaced
// before the consumer took them.
type Metrics struct {
	Published   int64
	Overwritten int64
	Taken       int64
}

func (m *Metrics) addPublished() {
	atomic.AddInt64(&m.Published, 1)
}

func (m *Metrics) addOverwritten() {
	atomic.AddInt64(&m.Overwritten, 1)
}

func (m *Metrics) addTaken() {
	atomic.AddInt64(&m.Taken, 1)
}
