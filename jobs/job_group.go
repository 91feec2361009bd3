// File: jobs/job_group.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package jobs

import "github.com/eapache/queue"

// JobGroup is an unordered bag of independently pushed functions completed
// as one job. Each push queues one pool task; whoever claims a function
// first (a worker or a helper inside Work/Wait) runs it, and leftover pool
// tasks find the bag empty and return.
type JobGroup struct {
	WaitableJob
	bag *queue.Queue // guarded by sync
}

// NewJobGroup creates an empty group bound to pool.
func NewJobGroup(pool *ThreadPool, opts ...JobOption) *JobGroup {
	g := &JobGroup{bag: queue.New()}
	g.initWaitable(pool, opts)
	return g
}

// PushJob adds fn to the group and queues a task to run it.
func (g *JobGroup) PushJob(fn func(tc *TaskContext)) {
	assertf(fn != nil, "job group: nil function")
	g.addTasks(1)
	g.sync.Lock()
	g.bag.Add(fn)
	g.sync.Unlock()
	g.pool.PushTask(g)
}

func (g *JobGroup) claim() func(tc *TaskContext) {
	g.sync.Lock()
	defer g.sync.Unlock()
	if g.bag.Length() == 0 {
		return nil
	}
	return g.bag.Remove().(func(tc *TaskContext))
}

func (g *JobGroup) runOne(tc *TaskContext) bool {
	fn := g.claim()
	if fn == nil {
		return false
	}
	g.runCounted(tc, fn)
	return true
}

// RunTask implements Runner.
func (g *JobGroup) RunTask(tc *TaskContext) {
	g.runOne(tc)
}

// Work runs one pending function on the caller and reports true. When the
// bag is empty but functions are still running it waits for the group to
// finish and reports false.
func (g *JobGroup) Work(tc *TaskContext) bool {
	g.checkWaiter(tc)
	if tc == nil {
		tc = g.pool.NewMainContext()
	}
	if g.runOne(tc) {
		return true
	}
	g.WaitableJob.Wait(tc)
	return false
}

// Wait runs pending functions on the caller, then waits for the rest.
func (g *JobGroup) Wait(tc *TaskContext) {
	if g.IsDone() {
		return
	}
	g.checkWaiter(tc)
	if tc == nil {
		tc = g.pool.NewMainContext()
	}
	for g.runOne(tc) {
	}
	g.WaitableJob.Wait(tc)
}

// Pending returns the number of functions not yet claimed.
func (g *JobGroup) Pending() int {
	g.sync.Lock()
	defer g.sync.Unlock()
	return g.bag.Length()
}
