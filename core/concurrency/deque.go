// File: core/concurrency/deque.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

// Deque is a bounded double-ended ring. It is not synchronized: one
// consumer owns it, or every access happens under the owner's lock.
type Deque[T any] struct {
	items []T
	head  int // index of the front element
	count int
}

// NewDeque returns a deque with room for capacity items.
func NewDeque[T any](capacity int) *Deque[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Deque[T]{items: make([]T, capacity)}
}

// Len returns the number of stored items.
func (d *Deque[T]) Len() int { return d.count }

// Cap returns the fixed capacity.
func (d *Deque[T]) Cap() int { return len(d.items) }

// Full reports whether no slot is left.
func (d *Deque[T]) Full() bool { return d.count == len(d.items) }

// PushBack appends v; returns false if full.
func (d *Deque[T]) PushBack(v T) bool {
	if d.Full() {
		return false
	}
	d.items[(d.head+d.count)%len(d.items)] = v
	d.count++
	return true
}

// PushFront prepends v; returns false if full.
func (d *Deque[T]) PushFront(v T) bool {
	if d.Full() {
		return false
	}
	d.head = (d.head - 1 + len(d.items)) % len(d.items)
	d.items[d.head] = v
	d.count++
	return true
}

// PopFront removes the front item.
func (d *Deque[T]) PopFront() (v T, ok bool) {
	if d.count == 0 {
		return v, false
	}
	var zero T
	v = d.items[d.head]
	d.items[d.head] = zero
	d.head = (d.head + 1) % len(d.items)
	d.count--
	return v, true
}

// PopBack removes the back item.
func (d *Deque[T]) PopBack() (v T, ok bool) {
	if d.count == 0 {
		return v, false
	}
	var zero T
	idx := (d.head + d.count - 1) % len(d.items)
	v = d.items[idx]
	d.items[idx] = zero
	d.count--
	return v, true
}
