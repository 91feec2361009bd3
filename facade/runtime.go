// File: facade/runtime.go
// Unified facade layer for hioload-jobs.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime aggregates the job scheduler, the allocation stack and the
// control surfaces behind one value built from a control.Config:
//
//	config -> logger -> metrics collector -> memory stack -> JobScheduler
//
// The memory stack, bottom up:
//
//	heap or virtual -> monotonic chunks -> TLSF arena -> fixed pools -> small cache
//
// Components receive their dependencies explicitly. Default() keeps a
// process-wide Runtime for application wiring only.

package facade

import (
	"fmt"
	"io"
	"sync"

	"github.com/momentics/hioload-jobs/adapters"
	"github.com/momentics/hioload-jobs/api"
	"github.com/momentics/hioload-jobs/control"
	"github.com/momentics/hioload-jobs/jobs"
	"github.com/momentics/hioload-jobs/memory"
)

// Option adjusts Runtime construction.
type Option func(*settings)

type settings struct {
	logOut io.Writer
}

// WithLogOutput sends log lines to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(s *settings) { s.logOut = w }
}

// Runtime is the main facade type.
// It implements api.GracefulShutdown.
type Runtime struct {
	store   *control.ConfigStore
	log     control.LevelLogger
	metrics api.Metrics
	prom    *control.Collector
	probes  *control.Probes
	control *adapters.ControlAdapter

	virtual  *memory.VirtualResource
	mono     *memory.TSMonotonicBuffer
	arena    *memory.TSTLSFResource
	pools    *memory.MultiPoolResource
	small    *memory.TSSmallMultiPool
	resource api.Resource

	sched    *jobs.JobScheduler
	executor *adapters.ExecutorAdapter
	timers   *adapters.SchedulerAdapter

	mu     sync.Mutex
	closed bool
}

var _ api.GracefulShutdown = (*Runtime)(nil)

// New builds a Runtime from cfg (DefaultConfig if nil).
func New(cfg *control.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = control.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var st settings
	for _, opt := range opts {
		opt(&st)
	}

	root, err := control.NewLogger(cfg.Log, st.logOut)
	if err != nil {
		return nil, err
	}
	r := &Runtime{
		store:   control.NewConfigStore(cfg),
		log:     root.Named("facade"),
		metrics: api.NopMetrics{},
		probes:  control.NewProbes(),
	}

	if cfg.Metrics.Enabled {
		c, err := control.NewCollector(cfg.Metrics.Namespace, nil)
		if err != nil {
			return nil, fmt.Errorf("metrics init failure: %w", err)
		}
		r.prom = c
		r.metrics = c
	}

	if err := r.buildMemory(cfg, root.Named("memory")); err != nil {
		return nil, err
	}

	r.sched = jobs.NewJobSchedulerWithConfig(schedulerConfig(cfg, root.Named("jobs"), r.metrics))
	r.executor = adapters.NewExecutorAdapter(r.sched.Pool())
	r.timers = adapters.NewSchedulerAdapter(r.sched.Dispatcher())
	r.control = adapters.NewControlAdapter(r.store, r.probes)

	control.RegisterPlatformProbes(r.probes)
	r.registerProbes()
	r.store.OnReload(r.applyReload)

	r.log.Info("runtime started",
		api.F("workers", r.sched.Pool().WorkerCount()),
		api.F("long_workers", r.sched.Pool().LongWorkerCount()),
		api.F("metrics", cfg.Metrics.Enabled))
	return r, nil
}

func schedulerConfig(cfg *control.Config, log api.Logger, m api.Metrics) jobs.SchedulerConfig {
	pool := jobs.DefaultConfig()
	if cfg.Scheduler.Workers >= 0 {
		pool.Workers = cfg.Scheduler.Workers
	}
	pool.LongWorkers = cfg.Scheduler.LongWorkers
	pool.QueueCapacity = cfg.Scheduler.QueueCapacity
	pool.PinWorkers = cfg.Scheduler.PinWorkers
	pool.IdleWait = cfg.Scheduler.IdleWait
	pool.Logger = log
	pool.Metrics = m
	return jobs.SchedulerConfig{
		Pool: pool,
		Dispatcher: jobs.DispatcherConfig{
			QueueCapacity: cfg.Scheduler.DispatcherQueue,
			IdleCheck:     cfg.Scheduler.IdleCheck,
			Logger:        log,
			Metrics:       m,
		},
	}
}

func (r *Runtime) buildMemory(cfg *control.Config, log api.Logger) error {
	mc := cfg.Memory
	var upstream api.Resource = memory.Default()
	if mc.UseVirtual {
		r.virtual = memory.NewVirtualResource(mc.VirtualQuota,
			memory.WithName("virtual"), memory.WithLogger(log), memory.WithMetrics(r.metrics))
		upstream = r.virtual
	}

	chunk := mc.MonotonicChunk
	if chunk == 0 {
		// room for the arena's first pool and its alignment
		chunk = mc.ArenaSize + 2*memory.PageSize()
	}
	r.mono = memory.NewTSMonotonicBuffer(upstream, chunk,
		memory.WithName("monotonic"), memory.WithLogger(log), memory.WithMetrics(r.metrics))

	oom := func(size int) {
		log.Warn("arena out of memory", api.F("request", size))
	}
	arena, err := memory.NewTSTLSFResource(r.mono, mc.ArenaSize,
		memory.WithName("arena"), memory.WithLogger(log), memory.WithMetrics(r.metrics),
		memory.WithOutOfMemory(oom))
	if err != nil {
		r.mono.Release()
		return fmt.Errorf("memory init failure: %w", err)
	}
	r.arena = arena
	r.resource = arena

	if len(mc.Pools) > 0 {
		cfgs := make([]memory.PoolConfig, len(mc.Pools))
		for i, p := range mc.Pools {
			cfgs[i] = memory.PoolConfig{BlockSize: p.BlockSize, BlocksPerChunk: p.BlocksPerChunk}
		}
		pools, err := memory.NewMultiPoolResource(arena, cfgs,
			memory.WithName("pools"), memory.WithLogger(log), memory.WithMetrics(r.metrics))
		if err != nil {
			arena.Release()
			r.mono.Release()
			return fmt.Errorf("memory init failure: %w", err)
		}
		r.pools = pools
		r.resource = pools
	}

	if mc.SmallPoolCache {
		r.small = memory.NewTSSmallMultiPool(r.resource,
			memory.WithName("small"), memory.WithLogger(log), memory.WithMetrics(r.metrics))
		r.resource = r.small
	}
	return nil
}

func (r *Runtime) registerProbes() {
	r.probes.RegisterProbe("jobs.pool", func() any { return r.sched.Pool().Stats() })
	r.probes.RegisterProbe("jobs.dispatcher", func() any { return r.sched.Dispatcher().Stats() })
	r.probes.RegisterProbe("memory.monotonic", func() any { return r.mono.Stats() })
	r.probes.RegisterProbe("memory.arena", func() any { return r.arena.Stats() })
	if r.pools != nil {
		r.probes.RegisterProbe("memory.pools", func() any { return r.pools.Stats() })
	}
	if r.small != nil {
		r.probes.RegisterProbe("memory.small", func() any { return r.small.Stats() })
	}
	if r.virtual != nil {
		r.probes.RegisterProbe("memory.virtual", func() any { return r.virtual.Stats() })
	}
}

// applyReload re-applies the settings that can change at runtime: log
// level and idle intervals. Everything else needs a new Runtime.
func (r *Runtime) applyReload(old, cur *control.Config) {
	if level, err := control.ParseLevel(cur.Log.Level); err == nil {
		r.log.SetLevel(level)
	}
	r.sched.Pool().SetIdleWait(cur.Scheduler.IdleWait)
	r.sched.Dispatcher().SetIdleCheck(cur.Scheduler.IdleCheck)
	if old.Scheduler.Workers != cur.Scheduler.Workers || !old.Memory.Equal(cur.Memory) || old.Log.Backend != cur.Log.Backend {
		r.log.Warn("reloaded settings need a restart to take effect")
	}
	r.log.Info("config reloaded", api.F("log_level", cur.Log.Level))
}

// Config returns the active configuration.
func (r *Runtime) Config() *control.Config { return r.store.Snapshot() }

// ConfigStore returns the store driving hot reload.
func (r *Runtime) ConfigStore() *control.ConfigStore { return r.store }

// Logger returns the facade logger. Named derivatives share its level.
func (r *Runtime) Logger() control.LevelLogger { return r.log }

// Collector returns the prometheus collector, or nil when metrics are off.
func (r *Runtime) Collector() *control.Collector { return r.prom }

// Probes returns the debug probe registry.
func (r *Runtime) Probes() *control.Probes { return r.probes }

// Control returns the api.Control view of config and probes.
func (r *Runtime) Control() api.Control { return r.control }

// Scheduler returns the job scheduler.
func (r *Runtime) Scheduler() *jobs.JobScheduler { return r.sched }

// Pool returns the worker pool.
func (r *Runtime) Pool() *jobs.ThreadPool { return r.sched.Pool() }

// Executor returns an api.Executor over the pool.
func (r *Runtime) Executor() api.Executor { return r.executor }

// Timers returns an api.Scheduler over the dispatcher.
func (r *Runtime) Timers() api.Scheduler { return r.timers }

// Resource returns the top of the allocation stack.
func (r *Runtime) Resource() api.Resource { return r.resource }

// Submit dispatches a task to the pool for asynchronous execution.
func (r *Runtime) Submit(task func()) error { return r.executor.Submit(task) }

// Shutdown stops the dispatcher, drains the pool and releases the memory
// stack top down.
// Blocks still held by callers are invalid afterwards. Subsequent calls are
// no-ops.
func (r *Runtime) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.sched.Close()
	if r.small != nil {
		r.small.Trim()
	}
	if r.pools != nil {
		r.pools.Release()
	}
	r.arena.Release()
	r.mono.Release()
	r.log.Info("runtime stopped")
	return nil
}

var (
	defaultMu sync.Mutex
	defaultRT *Runtime
)

// Default returns the process-wide Runtime, creating it from
// DefaultConfig on first use. Libraries should take a *Runtime or
// *jobs.JobScheduler instead of calling Default.
func Default() *Runtime {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRT == nil {
		rt, err := New(nil)
		if err != nil {
			panic(fmt.Sprintf("facade: default runtime: %v", err))
		}
		defaultRT = rt
	}
	return defaultRT
}

// SetDefault installs rt as the process-wide Runtime and returns the
// previous one, which the caller owns.
func SetDefault(rt *Runtime) *Runtime {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultRT
	defaultRT = rt
	return prev
}
