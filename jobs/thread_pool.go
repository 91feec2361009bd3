// File: jobs/thread_pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ThreadPool owns the worker goroutines and their queues.
//
// Queue layout: index 0 belongs to the main thread, 1..W to regular workers
// and W+1..W+L to long (IO) workers. Regular workers and companions take
// work from any regular queue, starting with their own; long workers only
// serve long queues; the main queue is served by callers outside the pool.
// With zero regular workers every push lands on the main queue.

package jobs

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-jobs/affinity"
	"github.com/momentics/hioload-jobs/api"
	"github.com/momentics/hioload-jobs/core/concurrency"
)

const (
	// MaxQueues bounds the number of queues including the main queue.
	MaxQueues = 128
	// MaxThreads bounds workers, long workers and companions together.
	MaxThreads = 256

	defaultIdleWait      = 2 * time.Millisecond
	defaultQueueCapacity = 1024
)

// Config configures a ThreadPool.
type Config struct {
	Workers       int           // regular workers; 0 runs everything on the main queue
	LongWorkers   int           // workers reserved for long or blocking jobs
	QueueCapacity int           // ring size of each queue before overflow
	PinWorkers    bool          // lock workers to OS threads pinned to CPUs
	IdleWait      time.Duration // idle worker and waiter recheck interval
	Logger        api.Logger
	Metrics       api.Metrics
}

// DefaultConfig sizes the pool from the hardware concurrency, leaving one
// CPU to the main thread.
func DefaultConfig() Config {
	return Config{
		Workers:       max(runtime.NumCPU()-1, 0),
		QueueCapacity: defaultQueueCapacity,
		IdleWait:      defaultIdleWait,
	}
}

func (c *Config) normalize() {
	if c.Workers < 0 {
		c.Workers = 0
	}
	if c.LongWorkers < 0 {
		c.LongWorkers = 0
	}
	if c.LongWorkers > MaxQueues-1 {
		c.LongWorkers = MaxQueues - 1
	}
	if c.Workers > MaxQueues-1-c.LongWorkers {
		c.Workers = MaxQueues - 1 - c.LongWorkers
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	if c.IdleWait <= 0 {
		c.IdleWait = defaultIdleWait
	}
	if c.Logger == nil {
		c.Logger = api.NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = api.NopMetrics{}
	}
}

// PoolStats is a snapshot of pool activity.
type PoolStats struct {
	Workers     int
	LongWorkers int
	Companions  int
	Queued      int
	QueueDepths []int
	Executed    int64
	Stolen      int64
	Panics      int64
}

// ThreadPool runs tasks on a fixed set of worker goroutines plus
// temporary companions.
type ThreadPool struct {
	cfg    Config
	log    api.Logger
	queues []*TaskQueue
	wake   []chan struct{}

	companionWake chan struct{}
	companionStop chan struct{}
	companions    atomic.Int32

	rr       atomic.Uint32
	longRR   atomic.Uint32
	idleNano atomic.Int64

	executed atomic.Int64
	stolen   atomic.Int64
	panics   atomic.Int64

	// gate orders TryPush calls against the start of Close
	gate      concurrency.SharedMutex
	closing   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	wg        sync.WaitGroup
}

// NewThreadPool starts the workers described by cfg.
func NewThreadPool(cfg Config) *ThreadPool {
	cfg.normalize()
	n := 1 + cfg.Workers + cfg.LongWorkers
	p := &ThreadPool{
		cfg:           cfg,
		log:           cfg.Logger,
		queues:        make([]*TaskQueue, n),
		wake:          make([]chan struct{}, n),
		companionWake: make(chan struct{}, 1),
		companionStop: make(chan struct{}, MaxThreads),
		closing:       make(chan struct{}),
	}
	p.idleNano.Store(int64(cfg.IdleWait))
	for i := range p.queues {
		p.queues[i] = NewTaskQueue(cfg.QueueCapacity)
		p.wake[i] = make(chan struct{}, 1)
	}
	for i := 1; i < n; i++ {
		kind := kindWorker
		if i > cfg.Workers {
			kind = kindLong
		}
		p.wg.Add(1)
		go p.workerLoop(&TaskContext{pool: p, queueIndex: i, kind: kind})
	}
	p.log.Info("thread pool started", api.F("workers", cfg.Workers),
		api.F("long_workers", cfg.LongWorkers), api.F("pinned", cfg.PinWorkers))
	return p
}

// WorkerCount returns the number of regular workers.
func (p *ThreadPool) WorkerCount() int { return p.cfg.Workers }

// LongWorkerCount returns the number of long/IO workers.
func (p *ThreadPool) LongWorkerCount() int { return p.cfg.LongWorkers }

// QueueCount returns the number of queues including the main queue.
func (p *ThreadPool) QueueCount() int { return len(p.queues) }

// CompanionCount returns the number of running companion workers.
func (p *ThreadPool) CompanionCount() int { return int(p.companions.Load()) }

// NewMainContext returns a context for a goroutine outside the pool. It
// serves the main queue while waiting.
func (p *ThreadPool) NewMainContext() *TaskContext {
	return &TaskContext{pool: p, queueIndex: 0, kind: kindMain}
}

// SetIdleWait changes the idle recheck interval at runtime.
func (p *ThreadPool) SetIdleWait(d time.Duration) {
	if d > 0 {
		p.idleNano.Store(int64(d))
	}
}

func (p *ThreadPool) idleWait() time.Duration { return time.Duration(p.idleNano.Load()) }

func (p *ThreadPool) checkOpen() {
	assertf(!p.closed.Load(), "push to closed thread pool")
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// nextQueue picks a regular queue round-robin, or the main queue when the
// pool has no regular workers.
func (p *ThreadPool) nextQueue() int {
	if p.cfg.Workers == 0 {
		return 0
	}
	return 1 + int(p.rr.Add(1)%uint32(p.cfg.Workers))
}

func (p *ThreadPool) clampQueue(queueIndex int) int {
	if p.cfg.Workers == 0 {
		return 0
	}
	if queueIndex < 0 || queueIndex >= len(p.queues) {
		return p.nextQueue()
	}
	return queueIndex
}

// PushTask queues one task of job on a regular worker queue.
func (p *ThreadPool) PushTask(job Runner) {
	p.AddTasks(p.nextQueue(), 1, job)
}

// PushLongTask queues one task on a long worker queue, falling back to a
// regular queue when the pool has no long workers.
func (p *ThreadPool) PushLongTask(job Runner) {
	if p.cfg.LongWorkers == 0 {
		p.PushTask(job)
		return
	}
	p.checkOpen()
	idx := 1 + p.cfg.Workers + int(p.longRR.Add(1)%uint32(p.cfg.LongWorkers))
	p.queues[idx].Push(Task{job: job})
	signal(p.wake[idx])
}

// PushMainThreadTask queues one task on the main queue.
func (p *ThreadPool) PushMainThreadTask(job Runner) {
	p.checkOpen()
	p.queues[0].Push(Task{job: job})
	signal(p.wake[0])
}

// TryPushTask is PushTask for callers outside the pool: once Close has
// started it returns api.ErrSchedulerClosed instead of panicking. Tasks it
// accepts are run by Close's drain.
func (p *ThreadPool) TryPushTask(job Runner) error {
	return p.tryPush(func() { p.PushTask(job) })
}

// TryPushLongTask is the PushLongTask counterpart of TryPushTask.
func (p *ThreadPool) TryPushLongTask(job Runner) error {
	return p.tryPush(func() { p.PushLongTask(job) })
}

func (p *ThreadPool) tryPush(push func()) error {
	p.gate.RLock()
	defer p.gate.RUnlock()
	if p.isClosing() {
		return api.ErrSchedulerClosed
	}
	push()
	return nil
}

// AddTasks appends count tasks of job to queueIndex and wakes up to count
// workers able to run them.
func (p *ThreadPool) AddTasks(queueIndex, count int, job Runner) {
	if count <= 0 {
		return
	}
	p.checkOpen()
	idx := p.clampQueue(queueIndex)
	q := p.queues[idx]
	for i := 0; i < count; i++ {
		q.Push(Task{job: job})
	}
	p.wakeFor(idx, count)
}

// AddTaskWithoutWakeUp appends one task without signalling any worker.
func (p *ThreadPool) AddTaskWithoutWakeUp(queueIndex int, job Runner) {
	p.checkOpen()
	p.queues[p.clampQueue(queueIndex)].Push(Task{job: job})
}

// WakeUp signals the owner of queueIndex and, for regular queues, one more
// worker able to steal from it.
func (p *ThreadPool) WakeUp(queueIndex int) {
	p.wakeFor(p.clampQueue(queueIndex), 2)
}

func (p *ThreadPool) wakeFor(idx, count int) {
	signal(p.wake[idx])
	if idx == 0 || idx > p.cfg.Workers {
		return
	}
	w := p.cfg.Workers
	for k := 1; k < count && k < w; k++ {
		signal(p.wake[1+(idx-1+k)%w])
	}
	if count > w || p.companions.Load() > 0 {
		signal(p.companionWake)
	}
}

// DoJobWork runs at most one queued task on behalf of tc, preferring queue
// last. It returns the index of the queue the task came from, or NoQueue
// when nothing was runnable. waiting, if set, stops the search once done.
func (p *ThreadPool) DoJobWork(tc *TaskContext, last int, waiting *WaitableJob) int {
	if waiting != nil && waiting.IsDone() {
		return NoQueue
	}
	switch tc.kind {
	case kindLong:
		return p.scan(tc, last, 1+p.cfg.Workers, p.cfg.LongWorkers)
	case kindMain:
		if t, ok := p.queues[0].Pop(); ok {
			p.execute(tc, t, 0)
			return 0
		}
	}
	return p.scan(tc, last, 1, p.cfg.Workers)
}

// scan tries queues [first, first+n) beginning at start.
func (p *ThreadPool) scan(tc *TaskContext, start, first, n int) int {
	if n == 0 {
		return NoQueue
	}
	if start < first || start >= first+n {
		start = first
	}
	for k := 0; k < n; k++ {
		idx := first + (start-first+k)%n
		if t, ok := p.queues[idx].Pop(); ok {
			p.execute(tc, t, idx)
			return idx
		}
	}
	return NoQueue
}

func (p *ThreadPool) execute(tc *TaskContext, t Task, queueIndex int) {
	start := time.Now()
	stolen := queueIndex != tc.queueIndex
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.cfg.Metrics.TaskPanicked(queueIndex)
			p.log.Error("task panicked", api.F("queue", queueIndex), api.F("panic", r))
		}
		p.executed.Add(1)
		if stolen {
			p.stolen.Add(1)
		}
		p.cfg.Metrics.TaskExecuted(queueIndex, stolen, time.Since(start))
	}()
	t.job.RunTask(tc)
}

// Closed reports whether Close has been called.
func (p *ThreadPool) Closed() bool { return p.isClosing() }

func (p *ThreadPool) isClosing() bool {
	select {
	case <-p.closing:
		return true
	default:
		return false
	}
}

func (p *ThreadPool) pin(tc *TaskContext) {
	if !p.cfg.PinWorkers {
		return
	}
	if err := affinity.PinCurrentThread(tc.queueIndex - 1); err != nil {
		p.log.Warn("worker pinning failed", api.F("queue", tc.queueIndex), api.F("error", err))
	}
}

func (p *ThreadPool) workerLoop(tc *TaskContext) {
	defer p.wg.Done()
	p.pin(tc)
	p.log.Debug("worker started", api.F("queue", tc.queueIndex), api.F("io", tc.IsIO()))

	timer := time.NewTimer(p.idleWait())
	defer timer.Stop()
	last := tc.queueIndex
	for {
		if idx := p.DoJobWork(tc, last, nil); idx != NoQueue {
			last = idx
			continue
		}
		last = tc.queueIndex
		if p.isClosing() {
			return
		}
		timer.Reset(p.idleWait())
		select {
		case <-p.wake[tc.queueIndex]:
		case <-timer.C:
		case <-p.closing:
		}
	}
}

// AddCompanionWorker starts a temporary worker without a queue of its own.
// It returns false when MaxThreads would be exceeded.
func (p *ThreadPool) AddCompanionWorker() bool {
	base := int32(p.cfg.Workers + p.cfg.LongWorkers)
	for {
		n := p.companions.Load()
		if base+n >= MaxThreads {
			return false
		}
		if p.companions.CompareAndSwap(n, n+1) {
			p.cfg.Metrics.CompanionWorkers(int(n + 1))
			break
		}
	}
	p.wg.Add(1)
	go p.companionLoop(&TaskContext{pool: p, queueIndex: NoQueue, kind: kindCompanion})
	return true
}

// RemoveCompanionWorker retires one companion worker.
func (p *ThreadPool) RemoveCompanionWorker() {
	n := p.companions.Add(-1)
	assertf(n >= 0, "companion worker removed without a matching add")
	p.cfg.Metrics.CompanionWorkers(int(n))
	signal(p.companionStop)
}

func (p *ThreadPool) companionLoop(tc *TaskContext) {
	defer p.wg.Done()
	timer := time.NewTimer(p.idleWait())
	defer timer.Stop()
	last := 1
	for {
		select {
		case <-p.companionStop:
			return
		default:
		}
		if idx := p.DoJobWork(tc, last, nil); idx != NoQueue {
			last = idx
			continue
		}
		if p.isClosing() {
			return
		}
		timer.Reset(p.idleWait())
		select {
		case <-p.companionStop:
			return
		case <-p.companionWake:
		case <-timer.C:
		case <-p.closing:
		}
	}
}

// WorkOnMainThreadNoBlock runs every task queued on the main queue on the
// calling goroutine and returns how many ran.
func (p *ThreadPool) WorkOnMainThreadNoBlock() int {
	tc := p.NewMainContext()
	n := 0
	for {
		t, ok := p.queues[0].Pop()
		if !ok {
			return n
		}
		p.execute(tc, t, 0)
		n++
	}
}

// WorkOnMainThread behaves like WorkOnMainThreadNoBlock but waits up to
// timeout for a main-queue task when none is queued.
func (p *ThreadPool) WorkOnMainThread(timeout time.Duration) int {
	if n := p.WorkOnMainThreadNoBlock(); n > 0 || timeout <= 0 {
		return n
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.wake[0]:
	case <-timer.C:
	case <-p.closing:
	}
	return p.WorkOnMainThreadNoBlock()
}

// Stats returns a snapshot of pool counters.
func (p *ThreadPool) Stats() PoolStats {
	st := PoolStats{
		Workers:     p.cfg.Workers,
		LongWorkers: p.cfg.LongWorkers,
		Companions:  p.CompanionCount(),
		QueueDepths: make([]int, len(p.queues)),
		Executed:    p.executed.Load(),
		Stolen:      p.stolen.Load(),
		Panics:      p.panics.Load(),
	}
	for i, q := range p.queues {
		st.QueueDepths[i] = q.Len()
		st.Queued += st.QueueDepths[i]
	}
	return st
}

func (p *ThreadPool) queued() int {
	n := 0
	for _, q := range p.queues {
		n += q.Len()
	}
	return n
}

// Close lets workers drain their queues, waits for them to exit, then
// runs whatever is left (including main-queue tasks) on the caller.
// Pushing after Close returns panics.
func (p *ThreadPool) Close() {
	p.closeOnce.Do(func() {
		concurrency.Locked(&p.gate, func() { close(p.closing) })
		p.wg.Wait()
		tc := &TaskContext{pool: p, queueIndex: 0, kind: kindMain}
		for p.queued() > 0 {
			for i := range p.queues {
				for {
					t, ok := p.queues[i].Pop()
					if !ok {
						break
					}
					p.execute(tc, t, i)
				}
			}
		}
		p.closed.Store(true)
		p.log.Info("thread pool closed", api.F("executed", p.executed.Load()))
	})
}
