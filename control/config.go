// File: control/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// YAML runtime configuration: scheduler sizing, memory stack, metrics
// endpoint and log level.

package control

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/momentics/hioload-jobs/api"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Memory    MemoryConfig    `yaml:"memory"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// SchedulerConfig sizes the thread pool and the dispatcher.
type SchedulerConfig struct {
	// Workers is the number of regular workers; -1 sizes from the CPU count.
	Workers         int           `yaml:"workers"`
	LongWorkers     int           `yaml:"long_workers"`
	QueueCapacity   int           `yaml:"queue_capacity"`
	PinWorkers      bool          `yaml:"pin_workers"`
	IdleWait        time.Duration `yaml:"idle_wait"`
	IdleCheck       time.Duration `yaml:"idle_check"`
	DispatcherQueue int           `yaml:"dispatcher_queue"`
}

// MemoryConfig selects the allocation stack.
type MemoryConfig struct {
	// ArenaSize is the initial TLSF reservation in bytes.
	ArenaSize int `yaml:"arena_size"`
	// VirtualQuota caps bytes reserved from the OS; 0 means unlimited.
	VirtualQuota int64 `yaml:"virtual_quota"`
	// UseVirtual backs the arena with mmap/VirtualAlloc instead of the heap.
	UseVirtual bool `yaml:"use_virtual"`
	// MonotonicChunk is the first chunk the arena's monotonic upstream
	// takes; later chunks double. 0 uses ArenaSize.
	MonotonicChunk int `yaml:"monotonic_chunk"`
	// Pools are fixed block-size pools between the arena and the small
	// pool cache. Empty disables the layer.
	Pools []PoolConfig `yaml:"pools"`
	// SmallPoolCache puts a size-class cache in front of the arena.
	SmallPoolCache bool `yaml:"small_pool_cache"`
}

// PoolConfig describes one fixed block-size pool.
type PoolConfig struct {
	BlockSize      int `yaml:"block_size"`
	BlocksPerChunk int `yaml:"blocks_per_chunk"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// LogConfig controls the default logger.
type LogConfig struct {
	Level string `yaml:"level"`
	// Backend is "klog" (the default) or "std" for plain log lines. Empty
	// selects std.
	Backend string `yaml:"backend"`
}

// DefaultConfig returns a configuration usable without a file.
func DefaultConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Workers:         -1,
			QueueCapacity:   1024,
			IdleWait:        2 * time.Millisecond,
			IdleCheck:       100 * time.Millisecond,
			DispatcherQueue: 256,
		},
		Memory: MemoryConfig{
			ArenaSize:  4 << 20,
			UseVirtual: true,
			Pools: []PoolConfig{
				{BlockSize: 256, BlocksPerChunk: 64},
				{BlockSize: 1024, BlocksPerChunk: 32},
				{BlockSize: 4096, BlocksPerChunk: 16},
			},
			SmallPoolCache: true,
		},
		Metrics: MetricsConfig{
			Addr:      ":9464",
			Namespace: "hioload_jobs",
		},
		Log: LogConfig{Level: "info", Backend: BackendKlog},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of DefaultConfig and validates it.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func invalid(field string, value any, reason string) error {
	return api.NewError(api.ErrCodeInvalidConfig, "invalid config: "+field+" "+reason).
		WithContext("field", field).
		WithContext("value", value)
}

// Validate checks value ranges. Errors are *api.Error with
// api.ErrCodeInvalidConfig.
func (c *Config) Validate() error {
	s := c.Scheduler
	switch {
	case s.Workers < -1:
		return invalid("scheduler.workers", s.Workers, "must be -1 or greater")
	case s.LongWorkers < 0:
		return invalid("scheduler.long_workers", s.LongWorkers, "must not be negative")
	case s.QueueCapacity <= 0:
		return invalid("scheduler.queue_capacity", s.QueueCapacity, "must be positive")
	case s.IdleWait <= 0:
		return invalid("scheduler.idle_wait", s.IdleWait, "must be positive")
	case s.IdleCheck <= 0:
		return invalid("scheduler.idle_check", s.IdleCheck, "must be positive")
	case s.DispatcherQueue <= 0:
		return invalid("scheduler.dispatcher_queue", s.DispatcherQueue, "must be positive")
	}
	if c.Memory.ArenaSize < 0 {
		return invalid("memory.arena_size", c.Memory.ArenaSize, "must not be negative")
	}
	if c.Memory.VirtualQuota < 0 {
		return invalid("memory.virtual_quota", c.Memory.VirtualQuota, "must not be negative")
	}
	if c.Memory.MonotonicChunk < 0 {
		return invalid("memory.monotonic_chunk", c.Memory.MonotonicChunk, "must not be negative")
	}
	for _, p := range c.Memory.Pools {
		if p.BlockSize <= 0 || p.BlocksPerChunk <= 0 {
			return invalid("memory.pools", p, "need positive block_size and blocks_per_chunk")
		}
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return invalid("metrics.addr", c.Metrics.Addr, "required when metrics are enabled")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level, "is not a known level")
	}
	if b := c.Log.Backend; b != "" && b != BackendStd && b != BackendKlog {
		return invalid("log.backend", b, "must be std or klog")
	}
	return nil
}

// Clone returns an independent copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Memory.Pools = append([]PoolConfig(nil), c.Memory.Pools...)
	return &cp
}

// Equal reports whether both memory stacks would be built the same way.
func (m MemoryConfig) Equal(o MemoryConfig) bool {
	a, b := m, o
	a.Pools, b.Pools = nil, nil
	if !reflect.DeepEqual(a, b) || len(m.Pools) != len(o.Pools) {
		return false
	}
	for i := range m.Pools {
		if m.Pools[i] != o.Pools[i] {
			return false
		}
	}
	return true
}
