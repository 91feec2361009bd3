package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/momentics/hioload-jobs/api"
	"github.com/momentics/hioload-jobs/control"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig() *control.Config {
	cfg := control.DefaultConfig()
	cfg.Scheduler.Workers = 2
	cfg.Scheduler.IdleWait = time.Millisecond
	cfg.Memory.ArenaSize = 1 << 20
	cfg.Memory.UseVirtual = false
	return cfg
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.Equal(t, "hioload-jobs", cmd.Use)
	assert.Equal(t, version, cmd.Version)

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Use] = true
		assert.NotNil(t, c.RunE, c.Use)
	}
	assert.Len(t, names, 4)
	for _, n := range []string{"run", "bench", "alloc", "status"} {
		assert.True(t, names[n], n)
	}

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
	assert.Equal(t, defaultConfigPath, flag.DefValue)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := loadConfig(filepath.Join(dir, "missing.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, control.DefaultConfig(), cfg)

	_, err = loadConfig(filepath.Join(dir, "missing.yaml"), true)
	assert.Error(t, err)

	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  workers: 3\n  idle_wait: 5ms\n"), 0o644))
	cfg, err = loadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Scheduler.Workers)
	assert.Equal(t, 5*time.Millisecond, cfg.Scheduler.IdleWait)

	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  queue_capacity: 0\n"), 0o644))
	_, err = loadConfig(path, true)
	assert.Error(t, err)
}

func TestRunBench(t *testing.T) {
	var out, logs bytes.Buffer
	err := runBench(context.Background(), smallConfig(), &out, &logs, 1000, 3, 10000, 100)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "tasks:         1000 in")
	assert.Contains(t, out.String(), "checksum:      49995000")
}

func TestRunBench_InvalidArgs(t *testing.T) {
	var out bytes.Buffer
	err := runBench(context.Background(), smallConfig(), &out, &out, 10, 0, 10, 1)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestRunAlloc(t *testing.T) {
	var out, logs bytes.Buffer
	require.NoError(t, runAlloc(smallConfig(), &out, &logs, 500, 64))
	assert.Contains(t, out.String(), "allocated 500 x 64 bytes")
	assert.Contains(t, out.String(), "arena at peak:")
	assert.Contains(t, out.String(), "reserved:")

	assert.ErrorIs(t, runAlloc(smallConfig(), &out, &logs, 1, 0), api.ErrInvalidArgument)
}

func TestPrintStatus(t *testing.T) {
	var out, logs bytes.Buffer
	require.NoError(t, printStatus(smallConfig(), &out, &logs))

	s := out.String()
	assert.Contains(t, s, "config:\n  scheduler:\n")
	assert.Contains(t, s, "workers: 2")
	assert.Contains(t, s, "probes:\n")
	assert.Contains(t, s, "jobs.pool:")
	assert.Contains(t, s, "platform.os:")
}

func TestRunSystem_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var logs bytes.Buffer
	errc := make(chan error, 1)
	go func() { errc <- runSystem(ctx, smallConfig(), 0, &logs) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "  a\n  b\n", indent([]byte("a\nb\n")))
	assert.Equal(t, "", indent(nil))
}
