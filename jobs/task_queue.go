// File: jobs/task_queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-worker FIFO of tasks: a bounded ring for the common case with an
// unbounded overflow queue behind it, so pushes never block or fail.

package jobs

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-jobs/core/concurrency"
)

// TaskQueue is safe for concurrent producers and consumers.
type TaskQueue struct {
	mu       sync.Mutex
	ring     *concurrency.Deque[Task]
	overflow *queue.Queue
	size     atomic.Int64
}

// NewTaskQueue creates a queue whose ring holds capacity tasks.
func NewTaskQueue(capacity int) *TaskQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &TaskQueue{
		ring:     concurrency.NewDeque[Task](capacity),
		overflow: queue.New(),
	}
}

// Push appends t.
func (q *TaskQueue) Push(t Task) {
	q.mu.Lock()
	if q.overflow.Length() > 0 || !q.ring.PushBack(t) {
		q.overflow.Add(t)
	}
	q.size.Add(1)
	q.mu.Unlock()
}

// Pop removes the oldest task.
func (q *TaskQueue) Pop() (Task, bool) {
	if q.size.Load() == 0 {
		return Task{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.ring.PopFront()
	if !ok {
		return Task{}, false
	}
	if q.overflow.Length() > 0 {
		q.ring.PushBack(q.overflow.Remove().(Task))
	}
	q.size.Add(-1)
	return t, true
}

// Len returns the number of queued tasks.
func (q *TaskQueue) Len() int { return int(q.size.Load()) }
