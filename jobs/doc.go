// Package jobs
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Cooperative job scheduling: a thread pool with per-worker queues, jobs
// that split into tasks, waiters that help execute queued work instead of
// idling, and a dispatcher goroutine for delayed and periodic jobs.
//
// Every task body receives a *TaskContext describing the goroutine that
// runs it (queue index, kind of worker, job currently executing). Wait uses
// it to help with the right queues, to add a companion worker while a pool
// worker is blocked, and to reject waits on the caller's own job chain.
// Callers outside the pool pass nil or a context from NewMainContext.
package jobs

import "fmt"

func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("jobs: "+format, args...))
	}
}
