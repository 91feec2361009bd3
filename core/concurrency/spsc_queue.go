// File: core/concurrency/spsc_queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-producer/single-consumer ring buffer with minimal atomics to reduce contention.

package concurrency

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// SPSCQueue is a bounded ring for exactly one producer and one consumer.
// Head and tail live on separate cache lines.
type SPSCQueue[T any] struct {
	mask    uint64
	entries []T
	_       cpu.CacheLinePad
	head    atomic.Uint64
	_       cpu.CacheLinePad
	tail    atomic.Uint64
	_       cpu.CacheLinePad
}

// NewSPSCQueue creates a new queue with capacity rounded to power of two.
func NewSPSCQueue[T any](capacity int) *SPSCQueue[T] {
	size := 2
	for size < capacity {
		size <<= 1
	}
	return &SPSCQueue[T]{mask: uint64(size - 1), entries: make([]T, size)}
}

// Enqueue adds val; returns false if full. Producer side only.
func (q *SPSCQueue[T]) Enqueue(val T) bool {
	tail := q.tail.Load()
	head := q.head.Load()
	if tail-head >= uint64(len(q.entries)) {
		return false
	}
	q.entries[tail&q.mask] = val
	q.tail.Store(tail + 1)
	return true
}

// Dequeue removes and returns an item; ok false if empty. Consumer side only.
func (q *SPSCQueue[T]) Dequeue() (item T, ok bool) {
	head := q.head.Load()
	tail := q.tail.Load()
	if head >= tail {
		return item, false
	}
	idx := head & q.mask
	item = q.entries[idx]
	var zero T
	q.entries[idx] = zero
	q.head.Store(head + 1)
	return item, true
}

// Len returns number of items currently in the queue.
func (q *SPSCQueue[T]) Len() int {
	head := q.head.Load()
	return int(q.tail.Load() - head)
}

// Cap returns fixed queue capacity.
func (q *SPSCQueue[T]) Cap() int {
	return len(q.entries)
}
