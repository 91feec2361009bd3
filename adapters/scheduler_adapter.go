// File: adapters/scheduler_adapter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SchedulerAdapter implements api.Scheduler with timed and periodic jobs
// on a jobs.JobDispatcher.

package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/momentics/hioload-jobs/api"
	"github.com/momentics/hioload-jobs/jobs"
)

// ErrNotActive is returned when cancelling a callback that already ran or
// was cancelled.
var ErrNotActive = errors.New("scheduled callback is not active")

type handle struct {
	job  *jobs.TimedJob
	done chan struct{}
	once sync.Once
	err  error
}

func newHandle() *handle {
	return &handle{done: make(chan struct{})}
}

func (h *handle) finish(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// Cancel implements api.Cancelable.
func (h *handle) Cancel() error {
	if !h.job.Cancel() {
		return ErrNotActive
	}
	h.finish(context.Canceled)
	return nil
}

func (h *handle) Done() <-chan struct{} { return h.done }

// Err returns context.Canceled after a successful Cancel and nil otherwise.
func (h *handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// SchedulerAdapter wraps a JobDispatcher to satisfy api.Scheduler.
type SchedulerAdapter struct {
	d *jobs.JobDispatcher
}

// NewSchedulerAdapter returns a scheduler adding jobs to d.
func NewSchedulerAdapter(d *jobs.JobDispatcher) *SchedulerAdapter {
	return &SchedulerAdapter{d: d}
}

// Schedule runs fn once after delay.
func (s *SchedulerAdapter) Schedule(delay time.Duration, fn func()) (api.Cancelable, error) {
	if fn == nil {
		return nil, api.ErrInvalidArgument
	}
	h := newHandle()
	h.job = jobs.NewTimedJob(func(*jobs.TaskContext) {
		defer h.finish(nil)
		fn()
	}, delay)
	if err := s.d.Add(h.job); err != nil {
		return nil, err
	}
	return h, nil
}

// Every runs fn every interval until cancelled.
func (s *SchedulerAdapter) Every(interval time.Duration, fn func()) (api.Cancelable, error) {
	return s.EveryWith(interval, fn)
}

// EveryWith is Every with periodic job options.
func (s *SchedulerAdapter) EveryWith(interval time.Duration, fn func(), opts ...jobs.PeriodicOption) (api.Cancelable, error) {
	if fn == nil || interval <= 0 {
		return nil, api.ErrInvalidArgument
	}
	h := newHandle()
	p := jobs.NewPeriodicJob(func(*jobs.TaskContext) { fn() }, interval, opts...)
	h.job = &p.TimedJob
	if err := s.d.Add(p); err != nil {
		return nil, err
	}
	return h, nil
}

// Cancel cancels a callback returned by Schedule or Every.
func (s *SchedulerAdapter) Cancel(c api.Cancelable) error {
	if c == nil {
		return api.ErrInvalidArgument
	}
	return c.Cancel()
}

// Now returns the dispatcher clock in microseconds.
func (s *SchedulerAdapter) Now() int64 { return jobs.Now() }

var _ api.Scheduler = (*SchedulerAdapter)(nil)
