// File: adapters/executor_adapter.go
// Package adapters provides glue between the job runtime and the api contracts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ExecutorAdapter implements api.Executor on top of a jobs.ThreadPool.
// Submitted functions become single pool tasks; panics are recovered and
// counted by the pool.

package adapters

import (
	"github.com/momentics/hioload-jobs/api"
	"github.com/momentics/hioload-jobs/jobs"
)

type submitted func()

func (f submitted) RunTask(*jobs.TaskContext) { f() }

// ExecutorAdapter wraps a ThreadPool to satisfy the api.Executor contract.
type ExecutorAdapter struct {
	pool *jobs.ThreadPool
}

// NewExecutorAdapter returns an executor submitting to pool. The adapter
// does not own the pool.
func NewExecutorAdapter(pool *jobs.ThreadPool) *ExecutorAdapter {
	return &ExecutorAdapter{pool: pool}
}

// Submit queues task on a regular worker.
func (ea *ExecutorAdapter) Submit(task func()) error {
	if task == nil {
		return api.ErrInvalidArgument
	}
	return ea.pool.TryPushTask(submitted(task))
}

// SubmitLong queues task on a long/IO worker.
func (ea *ExecutorAdapter) SubmitLong(task func()) error {
	if task == nil {
		return api.ErrInvalidArgument
	}
	return ea.pool.TryPushLongTask(submitted(task))
}

// NumWorkers returns the number of regular workers.
func (ea *ExecutorAdapter) NumWorkers() int {
	return ea.pool.WorkerCount()
}

var _ api.Executor = (*ExecutorAdapter)(nil)
