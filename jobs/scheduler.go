// File: jobs/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// JobScheduler is the process-level entry point: it owns a ThreadPool and
// the JobDispatcher that feeds it timed jobs.

package jobs

import (
	"time"

	"github.com/momentics/hioload-jobs/api"
)

// SchedulerConfig combines pool and dispatcher settings.
type SchedulerConfig struct {
	Pool       Config
	Dispatcher DispatcherConfig
}

// SchedulerOption adjusts a SchedulerConfig.
type SchedulerOption func(*SchedulerConfig)

// WithLongWorkers reserves n workers for long or blocking jobs.
func WithLongWorkers(n int) SchedulerOption {
	return func(c *SchedulerConfig) { c.Pool.LongWorkers = n }
}

// WithPinnedWorkers pins each worker to a CPU.
func WithPinnedWorkers(on bool) SchedulerOption {
	return func(c *SchedulerConfig) { c.Pool.PinWorkers = on }
}

// WithQueueCapacity sets the ring size of each worker queue.
func WithQueueCapacity(n int) SchedulerOption {
	return func(c *SchedulerConfig) { c.Pool.QueueCapacity = n }
}

// WithIdleWait sets the idle recheck interval of workers and waiters.
func WithIdleWait(d time.Duration) SchedulerOption {
	return func(c *SchedulerConfig) { c.Pool.IdleWait = d }
}

// WithIdleCheck sets the longest dispatcher sleep.
func WithIdleCheck(d time.Duration) SchedulerOption {
	return func(c *SchedulerConfig) { c.Dispatcher.IdleCheck = d }
}

// WithLogger routes pool and dispatcher logs to l.
func WithLogger(l api.Logger) SchedulerOption {
	return func(c *SchedulerConfig) {
		c.Pool.Logger = l
		c.Dispatcher.Logger = l
	}
}

// WithMetrics reports pool and dispatcher events to m.
func WithMetrics(m api.Metrics) SchedulerOption {
	return func(c *SchedulerConfig) {
		c.Pool.Metrics = m
		c.Dispatcher.Metrics = m
	}
}

// JobScheduler owns the worker pool and the timed-job dispatcher.
type JobScheduler struct {
	pool       *ThreadPool
	dispatcher *JobDispatcher
}

// NewJobScheduler sizes the pool for hwConcurrency threads: the calling
// thread plus hwConcurrency-1 workers. Values below 1 use runtime.NumCPU.
func NewJobScheduler(hwConcurrency int, opts ...SchedulerOption) *JobScheduler {
	cfg := SchedulerConfig{Pool: DefaultConfig()}
	if hwConcurrency >= 1 {
		cfg.Pool.Workers = hwConcurrency - 1
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewJobSchedulerWithConfig(cfg)
}

// NewJobSchedulerWithConfig builds a scheduler from an explicit config.
func NewJobSchedulerWithConfig(cfg SchedulerConfig) *JobScheduler {
	pool := NewThreadPool(cfg.Pool)
	if cfg.Dispatcher.Logger == nil {
		cfg.Dispatcher.Logger = cfg.Pool.Logger
	}
	if cfg.Dispatcher.Metrics == nil {
		cfg.Dispatcher.Metrics = cfg.Pool.Metrics
	}
	return &JobScheduler{pool: pool, dispatcher: NewJobDispatcher(pool, cfg.Dispatcher)}
}

// Pool returns the worker pool.
func (s *JobScheduler) Pool() *ThreadPool { return s.pool }

// Dispatcher returns the timed-job dispatcher.
func (s *JobScheduler) Dispatcher() *JobDispatcher { return s.dispatcher }

// PushJob schedules a timed or periodic job.
func (s *JobScheduler) PushJob(job Dispatchable) error {
	return s.dispatcher.Add(job)
}

// PushMainThreadJob queues job on the main queue; it runs when the main
// thread calls WorkOnMainThread or waits.
func (s *JobScheduler) PushMainThreadJob(job *Job) {
	job.RunOnMainThread()
}

// PushLongJob queues job on a long worker.
func (s *JobScheduler) PushLongJob(job *Job) {
	job.RunLong()
}

// Close stops the dispatcher, then drains and stops the pool.
func (s *JobScheduler) Close() {
	s.dispatcher.Close()
	s.pool.Close()
}
