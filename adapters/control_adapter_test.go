package adapters_test

import (
	"testing"
	"time"

	"github.com/momentics/hioload-jobs/adapters"
	"github.com/momentics/hioload-jobs/api"
	"github.com/momentics/hioload-jobs/control"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlAdapterBasic(t *testing.T) {
	store := control.NewConfigStore(nil)
	ctrl := adapters.NewControlAdapter(store, nil)

	cfg := ctrl.GetConfig()
	sched, ok := cfg["scheduler"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1024, sched["queue_capacity"])

	called := false
	ctrl.OnReload(func() { called = true })
	require.NoError(t, ctrl.SetConfig(map[string]any{
		"scheduler": map[string]any{"idle_wait": "7ms"},
		"log":       map[string]any{"level": "debug"},
	}))
	assert.True(t, called)
	assert.Equal(t, 7*time.Millisecond, store.Snapshot().Scheduler.IdleWait)
	assert.Equal(t, "debug", store.Snapshot().Log.Level)
	assert.Equal(t, 1024, store.Snapshot().Scheduler.QueueCapacity)

	err := ctrl.SetConfig(map[string]any{"log": map[string]any{"level": "loud"}})
	assert.ErrorIs(t, err, &api.Error{Code: api.ErrCodeInvalidConfig})
	assert.Equal(t, "debug", store.Snapshot().Log.Level)
}

func TestControlAdapterStats(t *testing.T) {
	ctrl := adapters.NewControlAdapter(nil, nil)
	ctrl.RegisterDebugProbe("answer", func() any { return 42 })
	stats := ctrl.Stats()
	assert.Equal(t, 42, stats["answer"])
	assert.Contains(t, stats, "platform.cpus")
}
