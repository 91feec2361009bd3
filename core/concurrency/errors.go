// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "errors"

var (
	// ErrQueueClosed indicates the queue no longer accepts items
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueFull indicates a bounded queue has no free slot
	ErrQueueFull = errors.New("queue is full")
)
