// File: jobs/waitable_job.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Completion tracking shared by every job kind.
//
// Two counters describe a job: tasksAvailable (queued, not yet claimed) and
// tasksInProgress (claimed or queued, not finished). tasksInProgress is
// raised before tasksAvailable and lowered after it, so it never drops
// below tasksAvailable; the job is done when tasksInProgress reaches zero.

package jobs

import (
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-jobs/core/concurrency"
)

// ioRecheck bounds a blocking wait on IO workers between completion checks.
const ioRecheck = 10 * time.Millisecond

// WaitableJob adds completion counters and a synchronizer to BaseJob.
type WaitableJob struct {
	BaseJob
	pool       *ThreadPool
	available  atomic.Int64
	inProgress atomic.Int64
	sync       concurrency.ThreadSynchronizer
}

func (w *WaitableJob) initWaitable(pool *ThreadPool, opts []JobOption) {
	assertf(pool != nil, "job requires a thread pool")
	w.pool = pool
	w.init(opts)
}

// TasksAvailable returns the number of tasks not yet claimed by a worker.
func (w *WaitableJob) TasksAvailable() int64 { return w.available.Load() }

// TasksInProgress returns the number of unfinished tasks.
func (w *WaitableJob) TasksInProgress() int64 { return w.inProgress.Load() }

// IsDone reports whether every task of the job has finished.
func (w *WaitableJob) IsDone() bool { return w.inProgress.Load() == 0 }

// addTasks registers n new tasks before they are made visible to workers.
func (w *WaitableJob) addTasks(n int) {
	w.inProgress.Add(int64(n))
	w.available.Add(int64(n))
}

// OnTaskStarted marks one task claimed.
func (w *WaitableJob) OnTaskStarted() {
	v := w.available.Add(-1)
	assertf(v >= 0, "task started with no tasks available")
}

// OnTaskDone marks one task finished and wakes all waiters on completion.
func (w *WaitableJob) OnTaskDone() {
	w.sync.Lock()
	v := w.inProgress.Add(-1)
	assertf(v >= 0, "task finished with no tasks in progress")
	if v == 0 {
		w.sync.NotifyAll()
	}
	w.sync.Unlock()
}

// runCounted executes fn as one task of w on tc. Counters stay balanced
// even if fn panics.
func (w *WaitableJob) runCounted(tc *TaskContext, fn func(tc *TaskContext)) {
	w.OnTaskStarted()
	prev := tc.current
	tc.current = &w.BaseJob
	defer func() {
		tc.current = prev
		w.OnTaskDone()
	}()
	fn(tc)
}

func (w *WaitableJob) checkWaiter(tc *TaskContext) {
	if tc != nil && tc.current != nil {
		assertf(!tc.current.IsMyJob(&w.BaseJob), "job %q waits on itself or an ancestor", w.tag)
	}
}

// Wait blocks until the job is done. Pool workers and main-thread callers
// execute queued tasks while waiting; when nothing is runnable a pool
// worker adds a companion worker for the duration of the block. IO workers
// only block. tc is the caller's context or nil outside the pool.
// Waiting on the caller's own job or an ancestor panics.
func (w *WaitableJob) Wait(tc *TaskContext) { w.waitOn(tc, w.pool) }

func (w *WaitableJob) waitOn(tc *TaskContext, pool *ThreadPool) {
	if w.IsDone() {
		return
	}
	w.checkWaiter(tc)

	if tc != nil && tc.IsIO() {
		w.sync.Lock()
		for !w.IsDone() {
			w.sync.Wait(ioRecheck)
		}
		w.sync.Unlock()
		return
	}
	if tc == nil {
		tc = pool.NewMainContext()
	}

	companion := false
	last := tc.queueIndex
	for !w.IsDone() {
		if idx := pool.DoJobWork(tc, last, w); idx != NoQueue {
			last = idx
			continue
		}
		if !companion && tc.isWorker() {
			companion = pool.AddCompanionWorker()
		}
		w.block(pool.idleWait())
	}
	if companion {
		pool.RemoveCompanionWorker()
	}
}

// block sleeps on the synchronizer until a notification or timeout. New
// queue work does not notify, so the timeout bounds how long queued tasks
// wait for this helper.
func (w *WaitableJob) block(timeout time.Duration) {
	w.sync.Lock()
	if !w.IsDone() {
		w.sync.Wait(timeout)
	}
	w.sync.Unlock()
}

// Release asserts the job has no unfinished tasks. Call it before dropping
// a job that may still be referenced by queued tasks.
func (w *WaitableJob) Release() {
	assertf(w.IsDone(), "job %q released with %d tasks in progress", w.tag, w.inProgress.Load())
}
