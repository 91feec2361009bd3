// Package api
// Author: momentics
//
// Scheduler contract for timed and periodic job execution.

package api

import "time"

// Scheduler abstracts deadline-driven execution of callbacks.
type Scheduler interface {
	// Schedule runs fn once after delay.
	Schedule(delay time.Duration, fn func()) (Cancelable, error)

	// Every runs fn every interval until canceled.
	Every(interval time.Duration, fn func()) (Cancelable, error)

	// Cancel cancels a previously scheduled callback.
	Cancel(c Cancelable) error

	// Now returns monotonic time in microseconds.
	Now() int64
}
