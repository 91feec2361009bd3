// Package api
// Author: momentics
//
// Executor contract for parallel task dispatch.

package api

// Executor abstracts fire-and-forget task execution on a worker pool.
type Executor interface {
	// Submit schedules task for execution.
	Submit(task func()) error

	// NumWorkers returns the number of regular worker threads.
	NumWorkers() int
}
