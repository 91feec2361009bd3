// File: control/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Prometheus collector for scheduler and memory events.

package control

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/momentics/hioload-jobs/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements api.Metrics on a prometheus registry.
type Collector struct {
	reg *prometheus.Registry

	executedOwn    prometheus.Counter
	executedStolen prometheus.Counter
	taskDuration   prometheus.Histogram
	taskPanics     prometheus.Counter
	companions     prometheus.Gauge
	timedFired     *prometheus.CounterVec
	timedResets    prometheus.Counter
	memGrowEvents  *prometheus.CounterVec
	memGrownBytes  *prometheus.CounterVec
	memExhausted   *prometheus.CounterVec
	memReserved    *prometheus.GaugeVec
}

// NewCollector registers the collector's metrics on reg, or on a private
// registry when reg is nil. Metrics already registered by an earlier
// collector with the same namespace are reused.
func NewCollector(namespace string, reg *prometheus.Registry) (*Collector, error) {
	if namespace == "" {
		namespace = "hioload_jobs"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	executed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_executed_total",
		Help:      "Tasks executed by pool workers and helpers.",
	}, []string{"stolen"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution time.",
		Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
	})
	panics := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_panics_total",
		Help:      "Tasks that panicked.",
	})
	companions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "companion_workers",
		Help:      "Companion workers currently running.",
	})
	fired := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "timed_jobs_fired_total",
		Help:      "Timed job executions pushed by the dispatcher.",
	}, []string{"late"})
	resets := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "timed_job_resets_total",
		Help:      "Periodic jobs that abandoned catch-up.",
	})
	growEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memory_grow_events_total",
		Help:      "Upstream growth events per resource.",
	}, []string{"resource"})
	grownBytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memory_grown_bytes_total",
		Help:      "Bytes obtained from upstream per resource.",
	}, []string{"resource"})
	exhausted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memory_exhausted_total",
		Help:      "Allocations that failed with out of memory.",
	}, []string{"resource"})
	reserved := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_reserved_bytes",
		Help:      "Bytes currently reserved per resource.",
	}, []string{"resource"})

	var err error
	if executed, err = register(reg, executed); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if panics, err = register(reg, panics); err != nil {
		return nil, err
	}
	if companions, err = register(reg, companions); err != nil {
		return nil, err
	}
	if fired, err = register(reg, fired); err != nil {
		return nil, err
	}
	if resets, err = register(reg, resets); err != nil {
		return nil, err
	}
	if growEvents, err = register(reg, growEvents); err != nil {
		return nil, err
	}
	if grownBytes, err = register(reg, grownBytes); err != nil {
		return nil, err
	}
	if exhausted, err = register(reg, exhausted); err != nil {
		return nil, err
	}
	if reserved, err = register(reg, reserved); err != nil {
		return nil, err
	}

	return &Collector{
		reg:            reg,
		executedOwn:    executed.WithLabelValues("false"),
		executedStolen: executed.WithLabelValues("true"),
		taskDuration:   duration,
		taskPanics:     panics,
		companions:     companions,
		timedFired:     fired,
		timedResets:    resets,
		memGrowEvents:  growEvents,
		memGrownBytes:  grownBytes,
		memExhausted:   exhausted,
		memReserved:    reserved,
	}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		existing, ok := are.ExistingCollector.(T)
		if !ok {
			return c, fmt.Errorf("collector type mismatch for %T", c)
		}
		return existing, nil
	}
	return c, err
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

func (c *Collector) TaskExecuted(_ int, stolen bool, d time.Duration) {
	if stolen {
		c.executedStolen.Inc()
	} else {
		c.executedOwn.Inc()
	}
	c.taskDuration.Observe(d.Seconds())
}

func (c *Collector) TaskPanicked(int) { c.taskPanics.Inc() }

func (c *Collector) CompanionWorkers(n int) { c.companions.Set(float64(n)) }

func (c *Collector) TimedJobFired(late bool) {
	c.timedFired.WithLabelValues(strconv.FormatBool(late)).Inc()
}

func (c *Collector) TimedJobReset() { c.timedResets.Inc() }

func (c *Collector) MemoryGrown(resource string, bytes int) {
	c.memGrowEvents.WithLabelValues(resource).Inc()
	c.memGrownBytes.WithLabelValues(resource).Add(float64(bytes))
}

func (c *Collector) MemoryExhausted(resource string) {
	c.memExhausted.WithLabelValues(resource).Inc()
}

func (c *Collector) MemoryReserved(resource string, bytes int64) {
	c.memReserved.WithLabelValues(resource).Set(float64(bytes))
}

var _ api.Metrics = (*Collector)(nil)
