// File: jobs/timed_job.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Delayed and periodic jobs driven by a JobDispatcher.

package jobs

import (
	"sync/atomic"
	"time"
)

var epoch = time.Now()

// Now returns the monotonic scheduler clock in microseconds.
func Now() int64 { return time.Since(epoch).Microseconds() }

// TimedState is the dispatch state of a timed job.
type TimedState int32

const (
	// Inactive jobs are not known to any dispatcher.
	Inactive TimedState = iota
	// Active jobs sit in a dispatcher's pending list.
	Active
	// Stopping jobs were cancelled and wait for removal on the next pass.
	Stopping
)

func (s TimedState) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	}
	return "unknown"
}

// Dispatchable is implemented by TimedJob and PeriodicJob.
type Dispatchable interface {
	timed() *TimedJob
}

// TimedJob runs a function once after a delay.
type TimedJob struct {
	WaitableJob
	fn    func(tc *TaskContext)
	delay time.Duration
	state atomic.Int32

	// bound by Add after the Inactive->Active transition; read by Cancel,
	// Wait and Reschedule on caller goroutines
	dispatcher atomic.Pointer[JobDispatcher]

	// owned by the dispatcher goroutine
	deadline int64
	periodic *periodicState

	target     atomic.Int64 // deadline the running execution aims for
	executions atomic.Int64
	skipped    atomic.Int64
	resets     atomic.Int64
}

type periodicState struct {
	interval int64
	extra    int
	maxLate  int
	preStart int64
	burst    int
	reported int64 // resets already reported to metrics
}

// NewTimedJob creates a one-shot job firing delay after it is added to a
// dispatcher. The pool is the dispatcher's, bound when the job is added.
func NewTimedJob(fn func(tc *TaskContext), delay time.Duration, opts ...JobOption) *TimedJob {
	assertf(fn != nil, "timed job without a function")
	j := &TimedJob{fn: fn, delay: delay}
	j.init(opts)
	return j
}

func (j *TimedJob) timed() *TimedJob { return j }

// State returns the dispatch state.
func (j *TimedJob) State() TimedState { return TimedState(j.state.Load()) }

// Executions returns how many times the function ran.
func (j *TimedJob) Executions() int64 { return j.executions.Load() }

// Skipped returns how many ticks were dropped because the previous
// execution was still running.
func (j *TimedJob) Skipped() int64 { return j.skipped.Load() }

// Resets returns how many times a late periodic job abandoned catch-up.
func (j *TimedJob) Resets() int64 { return j.resets.Load() }

// Cancel stops future executions. Removal from the dispatcher happens on its
// next pass; an execution already running completes. It reports whether
// the job was active.
func (j *TimedJob) Cancel() bool {
	if !j.state.CompareAndSwap(int32(Active), int32(Stopping)) {
		return false
	}
	if d := j.dispatcher.Load(); d != nil {
		signal(d.wake)
	}
	return true
}

// Wait blocks until the current execution, if any, completes. A job never
// added to a dispatcher returns at once.
func (j *TimedJob) Wait(tc *TaskContext) {
	d := j.dispatcher.Load()
	if d == nil {
		return
	}
	j.waitOn(tc, d.pool)
}

// dueAt is the dispatch time; the task itself sleeps the pre-start offset.
func (j *TimedJob) dueAt() int64 {
	if j.periodic != nil {
		return j.deadline - j.periodic.preStart
	}
	return j.deadline
}

// RunTask implements Runner.
func (j *TimedJob) RunTask(tc *TaskContext) {
	j.runCounted(tc, func(tc *TaskContext) {
		if d := j.target.Load() - Now(); d > 0 {
			time.Sleep(time.Duration(d) * time.Microsecond)
		}
		j.executions.Add(1)
		j.fn(tc)
	})
}

// PeriodicOption configures a PeriodicJob.
type PeriodicOption func(*periodicState)

// WithExtraIntervals runs n executions back to back when the job starts.
func WithExtraIntervals(n int) PeriodicOption {
	return func(p *periodicState) { p.extra = max(n, 0) }
}

// WithMaxIntervalsLate abandons catch-up once the job falls more than n
// intervals behind; the next execution is then one interval from now.
// Zero keeps catching up however late the job is.
func WithMaxIntervalsLate(n int) PeriodicOption {
	return func(p *periodicState) { p.maxLate = max(n, 0) }
}

// WithPreStartOffset dispatches each execution d early; the task sleeps the
// remainder so the function starts close to the period boundary.
func WithPreStartOffset(d time.Duration) PeriodicOption {
	return func(p *periodicState) { p.preStart = max(d.Microseconds(), 0) }
}

// PeriodicJob runs a function every interval until cancelled.
type PeriodicJob struct {
	TimedJob
}

// NewPeriodicJob creates a job firing every interval after it is added to
// a dispatcher.
func NewPeriodicJob(fn func(tc *TaskContext), interval time.Duration, opts ...PeriodicOption) *PeriodicJob {
	assertf(fn != nil, "periodic job without a function")
	assertf(interval > 0, "periodic job interval must be positive")
	ps := &periodicState{interval: interval.Microseconds()}
	for _, opt := range opts {
		opt(ps)
	}
	if ps.interval <= 0 {
		ps.interval = 1
	}
	j := &PeriodicJob{TimedJob: TimedJob{fn: fn, delay: interval, periodic: ps}}
	return j
}

// Interval returns the period.
func (j *PeriodicJob) Interval() time.Duration {
	return time.Duration(j.periodic.interval) * time.Microsecond
}

// start computes the first deadline when the job is (re)scheduled.
func (j *TimedJob) start(now int64, delay time.Duration) {
	p := j.periodic
	if p == nil {
		j.deadline = now + max(delay.Microseconds(), 0)
		return
	}
	if p.extra > 0 {
		p.burst = p.extra
		j.deadline = now
		return
	}
	p.burst = 0
	j.deadline = now + p.interval
}

// advance moves a periodic job past its fired deadline.
func (j *TimedJob) advance(now int64) {
	p := j.periodic
	if p.burst > 1 {
		p.burst--
		j.deadline = now
		return
	}
	p.burst = 0
	next := j.deadline + p.interval
	if p.maxLate > 0 && now-next > int64(p.maxLate)*p.interval {
		next = now + p.interval
		j.resets.Add(1)
	}
	j.deadline = next
}
