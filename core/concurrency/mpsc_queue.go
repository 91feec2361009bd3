// File: core/concurrency/mpsc_queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// MPSCQueue serializes producers with a mutex in front of an SPSCQueue.
// A lock-free multi-producer ring would need per-producer tokens to keep
// items from one producer in order, so producers take the lock instead.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// MPSCQueue is a bounded queue for many producers and one consumer.
type MPSCQueue[T any] struct {
	produce sync.Mutex
	ring    *SPSCQueue[T]
	closed  atomic.Bool
}

// NewMPSCQueue creates a queue holding up to capacity items (rounded up to
// a power of two).
func NewMPSCQueue[T any](capacity int) *MPSCQueue[T] {
	return &MPSCQueue[T]{ring: NewSPSCQueue[T](capacity)}
}

// TryEnqueue adds val without waiting. It fails with ErrQueueFull or
// ErrQueueClosed.
func (q *MPSCQueue[T]) TryEnqueue(val T) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	q.produce.Lock()
	ok := q.ring.Enqueue(val)
	q.produce.Unlock()
	if !ok {
		return ErrQueueFull
	}
	return nil
}

// Enqueue adds val, yielding while the ring is full. It only fails once
// the queue is closed.
func (q *MPSCQueue[T]) Enqueue(val T) error {
	for {
		err := q.TryEnqueue(val)
		if err != ErrQueueFull {
			return err
		}
		runtime.Gosched()
	}
}

// Dequeue removes the oldest item. Consumer side only.
func (q *MPSCQueue[T]) Dequeue() (T, bool) {
	return q.ring.Dequeue()
}

// Len returns the approximate number of queued items.
func (q *MPSCQueue[T]) Len() int {
	return q.ring.Len()
}

// Close stops accepting new items; queued items can still be dequeued.
func (q *MPSCQueue[T]) Close() {
	q.closed.Store(true)
}

// Closed reports whether Close was called.
func (q *MPSCQueue[T]) Closed() bool {
	return q.closed.Load()
}
