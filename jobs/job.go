// File: jobs/job.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package jobs

// Job runs a single function as one task.
type Job struct {
	WaitableJob
	fn func(tc *TaskContext)
}

// NewJob creates a job bound to pool. The job may be run again once done.
func NewJob(pool *ThreadPool, fn func(tc *TaskContext), opts ...JobOption) *Job {
	assertf(fn != nil, "job without a function")
	j := &Job{fn: fn}
	j.initWaitable(pool, opts)
	return j
}

// Run queues the job on a regular worker.
func (j *Job) Run() {
	j.addTasks(1)
	j.pool.PushTask(j)
}

// RunLong queues the job on a long/IO worker.
func (j *Job) RunLong() {
	j.addTasks(1)
	j.pool.PushLongTask(j)
}

// RunOnMainThread queues the job on the main queue.
func (j *Job) RunOnMainThread() {
	j.addTasks(1)
	j.pool.PushMainThreadTask(j)
}

// Execute runs the job inline on the caller. tc may be nil.
func (j *Job) Execute(tc *TaskContext) {
	if tc == nil {
		tc = j.pool.NewMainContext()
	}
	j.addTasks(1)
	j.runCounted(tc, j.fn)
}

// RunTask implements Runner.
func (j *Job) RunTask(tc *TaskContext) {
	j.runCounted(tc, j.fn)
}
