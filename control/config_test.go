package control

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-jobs/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestParseConfig_OverlaysDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
scheduler:
  workers: 3
  idle_wait: 5ms
memory:
  use_virtual: false
log:
  level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Scheduler.Workers)
	assert.Equal(t, 5*time.Millisecond, cfg.Scheduler.IdleWait)
	assert.Equal(t, 1024, cfg.Scheduler.QueueCapacity, "unset fields keep defaults")
	assert.False(t, cfg.Memory.UseVirtual)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParseConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"scheduler.workers":        "scheduler: {workers: -2}",
		"scheduler.queue_capacity": "scheduler: {queue_capacity: 0}",
		"memory.arena_size":        "memory: {arena_size: -1}",
		"memory.monotonic_chunk":   "memory: {monotonic_chunk: -1}",
		"memory.pools":             "memory: {pools: [{block_size: 64, blocks_per_chunk: 0}]}",
		"metrics.addr":             "metrics: {enabled: true, addr: \"\"}",
		"log.level":                "log: {level: loud}",
		"log.backend":              "log: {backend: syslog}",
	}
	for field, doc := range cases {
		_, err := ParseConfig([]byte(doc))
		require.Error(t, err, field)
		assert.True(t, errors.Is(err, &api.Error{Code: api.ErrCodeInvalidConfig}), field)
		var apiErr *api.Error
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, field, apiErr.Context["field"])
	}

	_, err := ParseConfig([]byte("scheduler: ["))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  long_workers: 2\n"), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Scheduler.LongWorkers)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigStore_Reload(t *testing.T) {
	cs := NewConfigStore(nil)
	var calls atomic.Int32
	var seen atomic.Value
	cs.OnReload(func(old, cur *Config) {
		calls.Add(1)
		seen.Store(old.Log.Level + "->" + cur.Log.Level)
	})

	cfg := cs.Snapshot()
	cfg.Log.Level = "warn"
	require.NoError(t, cs.UpdateSync(cfg))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "info->warn", seen.Load())
	assert.Equal(t, "warn", cs.Snapshot().Log.Level)

	cfg.Log.Level = "nope"
	assert.Error(t, cs.UpdateSync(cfg))
	assert.Equal(t, "warn", cs.Snapshot().Log.Level, "invalid update is rejected")
	assert.Equal(t, int32(1), calls.Load())

	cfg.Log.Level = "error"
	require.NoError(t, cs.Update(cfg))
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)

	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: {level: debug}\n"), 0o600))
	require.NoError(t, cs.Reload(path))
	assert.Equal(t, "debug", cs.Snapshot().Log.Level)
}

func TestConfigStore_SnapshotIsCopy(t *testing.T) {
	cs := NewConfigStore(DefaultConfig())
	s := cs.Snapshot()
	s.Scheduler.Workers = 99
	assert.Equal(t, -1, cs.Snapshot().Scheduler.Workers)
}

func TestConfig_MemoryPools(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
memory:
  pools:
    - {block_size: 128, blocks_per_chunk: 8}
`))
	require.NoError(t, err)
	assert.Equal(t, []PoolConfig{{BlockSize: 128, BlocksPerChunk: 8}}, cfg.Memory.Pools, "a listed sequence replaces the default pools")

	cp := cfg.Clone()
	cp.Memory.Pools[0].BlockSize = 512
	assert.Equal(t, 128, cfg.Memory.Pools[0].BlockSize, "clone does not share pools")
	assert.False(t, cfg.Memory.Equal(cp.Memory))

	cp.Memory.Pools[0].BlockSize = 128
	assert.True(t, cfg.Memory.Equal(cp.Memory))
	cp.Memory.Pools = nil
	assert.False(t, cfg.Memory.Equal(cp.Memory))
}

func TestShippedConfigParses(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "configs", "default.yaml"))
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.Scheduler.Workers)
	assert.Equal(t, 1, cfg.Scheduler.LongWorkers)
	assert.Equal(t, 100*time.Millisecond, cfg.Scheduler.IdleCheck)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 4<<20, cfg.Memory.ArenaSize)
	assert.Equal(t, DefaultConfig().Memory.Pools, cfg.Memory.Pools)
	assert.Equal(t, BackendKlog, cfg.Log.Backend)
}
