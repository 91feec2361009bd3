package control

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/momentics/hioload-jobs/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"debug": LevelDebug, "INFO": LevelInfo, "": LevelInfo,
		"warning": LevelWarn, "Error": LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("trace")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestDefaultLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(&buf, LevelInfo).With("pool")
	l.Info("started", api.F("workers", 4), api.F("pinned", false))

	line := buf.String()
	assert.True(t, strings.Contains(line, "[INFO] [pool] started {workers: 4, pinned: false}"), line)
}

func TestDefaultLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	root := NewDefaultLogger(&buf, LevelWarn)
	child := root.With("memory")

	child.Debug("hidden")
	child.Info("hidden")
	assert.Zero(t, buf.Len())

	child.Warn("shown")
	assert.Contains(t, buf.String(), "[WARN] [memory] shown")

	root.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, child.Level())
	child.Debug("now shown")
	assert.Contains(t, buf.String(), "[DEBUG] [memory] now shown")
}

func TestNoOpLogger(t *testing.T) {
	var l api.Logger = NoOpLogger{}
	assert.NotPanics(t, func() { l.Error("ignored", api.F("k", 1)) })
}

func TestNewLogger_Backends(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(LogConfig{Level: "warn"}, &buf)
	require.NoError(t, err)
	assert.IsType(t, &DefaultLogger{}, l)
	assert.Equal(t, LevelWarn, l.Level())

	l.Named("cli").Warn("named")
	assert.Contains(t, buf.String(), "[WARN] [cli] named")

	l, err = NewLogger(DefaultConfig().Log, nil)
	require.NoError(t, err)
	assert.IsType(t, &KlogLogger{}, l)

	_, err = NewLogger(LogConfig{Backend: "syslog"}, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	_, err = NewLogger(LogConfig{Level: "loud"}, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestKlogLogger(t *testing.T) {
	var buf bytes.Buffer
	t.Cleanup(func() {
		klog.SetOutput(os.Stderr)
		klog.LogToStderr(true)
	})
	l, err := NewLogger(LogConfig{Level: "info", Backend: BackendKlog}, &buf)
	require.NoError(t, err)
	require.IsType(t, &KlogLogger{}, l)

	pool := l.Named("pool")
	pool.Debug("hidden")
	pool.Info("task ran", api.F("n", 3))
	pool.Warn("slow", api.F("queue", 2))
	pool.Error("write failed", api.F("error", errors.New("boom")))
	klog.Flush()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"task ran" component="pool" n=3`)
	assert.Contains(t, out, `"slow" component="pool" level="WARN" queue=2`)
	assert.Contains(t, out, `"write failed" err="boom" component="pool"`)

	l.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, pool.Level())
	pool.Debug("visible")
	klog.Flush()
	assert.Contains(t, buf.String(), `"visible" component="pool" level="DEBUG"`)
}
