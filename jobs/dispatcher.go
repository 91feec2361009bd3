// File: jobs/dispatcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// JobDispatcher owns one goroutine that keeps timed jobs sorted by their
// next deadline, sleeps until the earliest one and pushes due jobs onto the
// thread pool. New and rescheduled jobs arrive through an MPSC queue and a
// wake signal so producers never touch the pending list.

package jobs

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-jobs/api"
	"github.com/momentics/hioload-jobs/core/concurrency"
)

const (
	defaultDispatcherQueue = 256
	defaultIdleCheck       = 100 * time.Millisecond
	burstRetry             = 200 * time.Microsecond
)

type dispatchOp struct {
	job        *TimedJob
	delay      time.Duration
	reschedule bool
}

// DispatcherConfig configures a JobDispatcher.
type DispatcherConfig struct {
	QueueCapacity int           // incoming queue capacity
	IdleCheck     time.Duration // longest sleep between passes
	Logger        api.Logger
	Metrics       api.Metrics
}

// DispatcherStats is a snapshot of dispatcher activity.
type DispatcherStats struct {
	Pending int
	Fired   int64
	Skipped int64
}

// JobDispatcher runs timed jobs on a ThreadPool.
type JobDispatcher struct {
	pool     *ThreadPool
	log      api.Logger
	metrics  api.Metrics
	incoming *concurrency.MPSCQueue[dispatchOp]
	wake     chan struct{}

	pending []*TimedJob // sorted by dueAt; dispatcher goroutine only
	count   atomic.Int32
	idle    atomic.Int64
	fired   atomic.Int64
	skipped atomic.Int64

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewJobDispatcher starts the dispatcher goroutine.
func NewJobDispatcher(pool *ThreadPool, cfg DispatcherConfig) *JobDispatcher {
	assertf(pool != nil, "dispatcher requires a thread pool")
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultDispatcherQueue
	}
	if cfg.IdleCheck <= 0 {
		cfg.IdleCheck = defaultIdleCheck
	}
	if cfg.Logger == nil {
		cfg.Logger = api.NopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = api.NopMetrics{}
	}
	d := &JobDispatcher{
		pool:     pool,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		incoming: concurrency.NewMPSCQueue[dispatchOp](cfg.QueueCapacity),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	d.idle.Store(int64(cfg.IdleCheck))
	go d.loop()
	return d
}

// Pool returns the pool that executes dispatched jobs.
func (d *JobDispatcher) Pool() *ThreadPool { return d.pool }

// SetIdleCheck changes the longest sleep between passes at runtime.
func (d *JobDispatcher) SetIdleCheck(v time.Duration) {
	if v > 0 {
		d.idle.Store(int64(v))
		signal(d.wake)
	}
}

// Add schedules job. It fails with api.ErrAlreadyScheduled while the job is
// active or stopping and with api.ErrSchedulerClosed after Close.
func (d *JobDispatcher) Add(job Dispatchable) error {
	t := job.timed()
	if !t.state.CompareAndSwap(int32(Inactive), int32(Active)) {
		return api.ErrAlreadyScheduled
	}
	t.dispatcher.Store(d)
	if err := d.incoming.Enqueue(dispatchOp{job: t, delay: t.delay}); err != nil {
		t.state.Store(int32(Inactive))
		return api.ErrSchedulerClosed
	}
	signal(d.wake)
	return nil
}

// Reschedule moves the next execution of job to delay from now. Inactive
// jobs are added.
func (d *JobDispatcher) Reschedule(job Dispatchable, delay time.Duration) error {
	t := job.timed()
	if t.state.CompareAndSwap(int32(Inactive), int32(Active)) {
		t.dispatcher.Store(d)
	} else if t.dispatcher.Load() != d {
		return api.ErrAlreadyScheduled
	}
	if err := d.incoming.Enqueue(dispatchOp{job: t, delay: delay, reschedule: true}); err != nil {
		return api.ErrSchedulerClosed
	}
	signal(d.wake)
	return nil
}

// Pending returns the number of scheduled jobs, including those not yet
// picked up by the dispatcher goroutine.
func (d *JobDispatcher) Pending() int {
	return int(d.count.Load()) + d.incoming.Len()
}

// Stats returns a snapshot of dispatcher counters.
func (d *JobDispatcher) Stats() DispatcherStats {
	return DispatcherStats{Pending: d.Pending(), Fired: d.fired.Load(), Skipped: d.skipped.Load()}
}

// Close stops the dispatcher goroutine. Pending jobs become inactive;
// executions already pushed to the pool are not affected.
func (d *JobDispatcher) Close() {
	d.closeOnce.Do(func() {
		d.incoming.Close()
		close(d.done)
		<-d.stopped
	})
}

func (d *JobDispatcher) insert(j *TimedJob) {
	due := j.dueAt()
	i := sort.Search(len(d.pending), func(i int) bool { return d.pending[i].dueAt() > due })
	d.pending = append(d.pending, nil)
	copy(d.pending[i+1:], d.pending[i:])
	d.pending[i] = j
}

func (d *JobDispatcher) remove(j *TimedJob) bool {
	for i, p := range d.pending {
		if p == j {
			copy(d.pending[i:], d.pending[i+1:])
			d.pending[len(d.pending)-1] = nil
			d.pending = d.pending[:len(d.pending)-1]
			return true
		}
	}
	return false
}

func (d *JobDispatcher) apply(op dispatchOp, now int64) {
	j := op.job
	switch j.State() {
	case Inactive:
		return
	case Stopping:
		d.remove(j)
		j.state.Store(int32(Inactive))
		return
	}
	if op.reschedule {
		d.remove(j)
		j.deadline = now + max(op.delay.Microseconds(), 0)
	} else {
		j.start(now, op.delay)
	}
	d.insert(j)
}

// sweep drops cancelled jobs.
func (d *JobDispatcher) sweep() {
	kept := d.pending[:0]
	for _, j := range d.pending {
		if j.State() == Stopping {
			j.state.Store(int32(Inactive))
			continue
		}
		kept = append(kept, j)
	}
	for i := len(kept); i < len(d.pending); i++ {
		d.pending[i] = nil
	}
	d.pending = kept
}

// fire pushes one execution of j and computes its next deadline. It reports
// whether j stays scheduled.
func (d *JobDispatcher) fire(j *TimedJob, now int64) bool {
	p := j.periodic
	if !j.IsDone() {
		if p == nil || p.burst > 0 {
			// one-shot and catch-up executions queue behind the running one
			j.deadline = now + burstRetry.Microseconds()
			return true
		}
		j.skipped.Add(1)
		d.skipped.Add(1)
		j.advance(now)
		d.countReset(j)
		return true
	}

	if j.State() == Stopping {
		j.state.Store(int32(Inactive))
		return false
	}
	late := p != nil && now-j.deadline >= p.interval
	j.target.Store(j.deadline)
	j.addTasks(1)
	if p == nil {
		// a cancel racing the fire is satisfied by the fire
		j.state.Store(int32(Inactive))
	}
	d.pool.PushTask(j)
	d.fired.Add(1)
	d.metrics.TimedJobFired(late)

	if p == nil {
		return false
	}
	j.advance(now)
	d.countReset(j)
	return true
}

func (d *JobDispatcher) countReset(j *TimedJob) {
	if n := j.resets.Load(); n > 0 && j.periodic != nil && n != j.periodic.reported {
		j.periodic.reported = n
		d.metrics.TimedJobReset()
	}
}

func (d *JobDispatcher) loop() {
	defer close(d.stopped)
	timer := time.NewTimer(time.Duration(d.idle.Load()))
	defer timer.Stop()

	for {
		now := Now()
		for {
			op, ok := d.incoming.Dequeue()
			if !ok {
				break
			}
			d.apply(op, now)
		}
		d.sweep()

		for len(d.pending) > 0 {
			j := d.pending[0]
			if j.dueAt() > now {
				break
			}
			d.pending = d.pending[1:]
			if d.fire(j, now) {
				d.insert(j)
			}
		}
		d.count.Store(int32(len(d.pending)))

		sleep := time.Duration(d.idle.Load())
		if len(d.pending) > 0 {
			if until := time.Duration(d.pending[0].dueAt()-Now()) * time.Microsecond; until < sleep {
				sleep = until
			}
		}
		if sleep > 0 {
			timer.Reset(sleep)
			select {
			case <-d.done:
				d.shutdown()
				return
			case <-d.wake:
			case <-timer.C:
			}
		} else {
			select {
			case <-d.done:
				d.shutdown()
				return
			default:
			}
		}
	}
}

func (d *JobDispatcher) shutdown() {
	for _, j := range d.pending {
		j.state.Store(int32(Inactive))
	}
	for {
		op, ok := d.incoming.Dequeue()
		if !ok {
			break
		}
		op.job.state.Store(int32(Inactive))
	}
	d.pending = nil
	d.count.Store(0)
	d.log.Debug("dispatcher stopped")
}
