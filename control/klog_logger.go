// File: control/klog_logger.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// api.Logger over klog structured logging, for processes that already
// configure klog (flags, verbosity, log files).

package control

import (
	"sync/atomic"

	"github.com/momentics/hioload-jobs/api"
	"k8s.io/klog/v2"
)

// KlogLogger emits InfoS/ErrorS records. The threshold is applied before
// klog sees the record; debug and warn records carry a level key because
// klog has no structured form for them.
type KlogLogger struct {
	level     *atomic.Int32
	component string
}

// NewKlogLogger creates a klog-backed logger with the given threshold.
func NewKlogLogger(level Level) *KlogLogger {
	l := &KlogLogger{level: new(atomic.Int32)}
	l.level.Store(int32(level))
	return l
}

// Named implements LevelLogger.
func (l *KlogLogger) Named(component string) LevelLogger {
	return &KlogLogger{level: l.level, component: component}
}

func (l *KlogLogger) SetLevel(level Level) { l.level.Store(int32(level)) }

func (l *KlogLogger) Level() Level { return Level(l.level.Load()) }

func (l *KlogLogger) Debug(msg string, fields ...api.Field) { l.info(LevelDebug, msg, fields) }
func (l *KlogLogger) Info(msg string, fields ...api.Field)  { l.info(LevelInfo, msg, fields) }
func (l *KlogLogger) Warn(msg string, fields ...api.Field)  { l.info(LevelWarn, msg, fields) }

func (l *KlogLogger) Error(msg string, fields ...api.Field) {
	if LevelError < l.Level() {
		return
	}
	var err error
	rest := fields[:0:0]
	for _, f := range fields {
		if e, ok := f.Value.(error); ok && err == nil && f.Key == "error" {
			err = e
			continue
		}
		rest = append(rest, f)
	}
	klog.ErrorSDepth(1, err, msg, l.keysAndValues(LevelError, rest)...)
}

func (l *KlogLogger) info(level Level, msg string, fields []api.Field) {
	if level < l.Level() {
		return
	}
	klog.InfoSDepth(2, msg, l.keysAndValues(level, fields)...)
}

func (l *KlogLogger) keysAndValues(level Level, fields []api.Field) []any {
	kv := make([]any, 0, 2*len(fields)+4)
	if l.component != "" {
		kv = append(kv, "component", l.component)
	}
	if level == LevelDebug || level == LevelWarn {
		kv = append(kv, "level", level.String())
	}
	for _, f := range fields {
		kv = append(kv, f.Key, f.Value)
	}
	return kv
}

var _ LevelLogger = (*KlogLogger)(nil)
