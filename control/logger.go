// File: control/logger.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Leveled logger over the standard log package.

package control

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/momentics/hioload-jobs/api"
	"k8s.io/klog/v2"
)

// Level is a minimum log severity.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", int32(l))
}

// ParseLevel accepts debug, info, warn/warning and error in any case.
// An empty string means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q: %w", s, api.ErrInvalidArgument)
}

// LevelLogger is a component logger whose threshold can change at runtime.
// Loggers derived with Named share the threshold of their parent.
type LevelLogger interface {
	api.Logger
	Named(component string) LevelLogger
	SetLevel(level Level)
	Level() Level
}

// Log backends accepted in LogConfig.Backend.
const (
	BackendStd  = "std"
	BackendKlog = "klog"
)

// NewLogger builds the logger selected by cfg. w replaces the backend's
// default destination when non-nil.
func NewLogger(cfg LogConfig, w io.Writer) (LevelLogger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "", BackendStd:
		return NewDefaultLogger(w, level), nil
	case BackendKlog:
		if w != nil {
			klog.LogToStderr(false)
			klog.SetOutput(w)
		}
		return NewKlogLogger(level), nil
	}
	return nil, fmt.Errorf("unknown log backend %q: %w", cfg.Backend, api.ErrInvalidArgument)
}

// DefaultLogger writes `[LEVEL] [component] msg {k: v}` lines. Loggers
// derived with With share the level, so SetLevel affects all of them.
type DefaultLogger struct {
	out       *log.Logger
	level     *atomic.Int32
	component string
}

// NewDefaultLogger creates a logger writing to w (stderr if nil).
func NewDefaultLogger(w io.Writer, level Level) *DefaultLogger {
	if w == nil {
		w = os.Stderr
	}
	l := &DefaultLogger{out: log.New(w, "", log.LstdFlags|log.Lmicroseconds), level: new(atomic.Int32)}
	l.level.Store(int32(level))
	return l
}

// With returns a logger tagging lines with component.
func (l *DefaultLogger) With(component string) *DefaultLogger {
	return &DefaultLogger{out: l.out, level: l.level, component: component}
}

// Named implements LevelLogger.
func (l *DefaultLogger) Named(component string) LevelLogger { return l.With(component) }

// SetLevel changes the minimum level at runtime.
func (l *DefaultLogger) SetLevel(level Level) { l.level.Store(int32(level)) }

// Level returns the minimum level.
func (l *DefaultLogger) Level() Level { return Level(l.level.Load()) }

func (l *DefaultLogger) Debug(msg string, fields ...api.Field) { l.log(LevelDebug, msg, fields) }
func (l *DefaultLogger) Info(msg string, fields ...api.Field)  { l.log(LevelInfo, msg, fields) }
func (l *DefaultLogger) Warn(msg string, fields ...api.Field)  { l.log(LevelWarn, msg, fields) }
func (l *DefaultLogger) Error(msg string, fields ...api.Field) { l.log(LevelError, msg, fields) }

func (l *DefaultLogger) log(level Level, msg string, fields []api.Field) {
	if level < l.Level() {
		return
	}
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(level.String())
	b.WriteString("] ")
	if l.component != "" {
		b.WriteByte('[')
		b.WriteString(l.component)
		b.WriteString("] ")
	}
	b.WriteString(msg)
	if len(fields) > 0 {
		b.WriteString(" {")
		for i, f := range fields {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %v", f.Key, f.Value)
		}
		b.WriteByte('}')
	}
	l.out.Println(b.String())
}

// NoOpLogger discards everything.
type NoOpLogger = api.NopLogger

var _ LevelLogger = (*DefaultLogger)(nil)
