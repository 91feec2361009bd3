// File: jobs/list_job.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Range partitioning. The item range is split into batches, and task lists
// race to claim the next batch from a shared counter, so fast workers
// naturally take more batches. The submitting goroutine always runs one
// list itself.

package jobs

import "sync/atomic"

// CalcNumTaskLists returns the number of batches for items: ceil(items/batchSize).
func CalcNumTaskLists(batchSize, items int) int {
	if items <= 0 {
		return 0
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return (items + batchSize - 1) / batchSize
}

// CalcListCount returns how many task lists to queue on the pool for items
// split into minBatch batches, besides the list run by the submitter.
// The count is min(batches-1, workers), doubled when more than twice the
// worker count of batches remain.
func CalcListCount(items, minBatch, workers int) int {
	batches := CalcNumTaskLists(minBatch, items)
	rest := batches - 1
	if rest <= 0 || workers <= 0 {
		return 0
	}
	lists := min(rest, workers)
	if rest > 2*workers {
		lists = min(2*lists, rest)
	}
	return lists
}

// ParallelForJob splits an index range over the pool.
type ParallelForJob struct {
	WaitableJob
	counter   atomic.Int64
	items     int64
	batch     int64
	lists     int
	slot      atomic.Int32
	processed []atomic.Int64
	fn        func(tc *TaskContext, start, end int)
}

// NewParallelForJob creates a reusable range job bound to pool.
func NewParallelForJob(pool *ThreadPool, opts ...JobOption) *ParallelForJob {
	j := &ParallelForJob{}
	j.initWaitable(pool, opts)
	return j
}

// Run calls fn over disjoint [start,end) ranges covering [0,items), each at
// most batchSize long, then waits for completion. The caller takes part
// in the work. tc may be nil.
func (j *ParallelForJob) Run(tc *TaskContext, items, batchSize int, fn func(tc *TaskContext, start, end int)) {
	assertf(j.IsDone(), "parallel-for job restarted while running")
	j.lists = 0
	j.processed = nil
	if items <= 0 {
		return
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	if tc == nil {
		tc = j.pool.NewMainContext()
	}

	j.fn = fn
	j.items = int64(items)
	j.batch = int64(batchSize)
	j.counter.Store(0)
	j.slot.Store(0)
	j.lists = CalcListCount(items, batchSize, j.pool.WorkerCount())
	j.processed = make([]atomic.Int64, j.lists+1)

	j.addTasks(j.lists + 1)
	if j.lists > 0 {
		first := tc.queueIndex
		if !tc.isWorker() || first <= 0 {
			first = j.pool.nextQueue()
		}
		j.pool.AddTasks(first, j.lists, j)
	}
	j.runCounted(tc, func(tc *TaskContext) { j.drain(tc, 0) })
	j.Wait(tc)
}

// RunTask implements Runner: one queued task list.
func (j *ParallelForJob) RunTask(tc *TaskContext) {
	slot := int(j.slot.Add(1))
	j.runCounted(tc, func(tc *TaskContext) { j.drain(tc, slot) })
}

func (j *ParallelForJob) drain(tc *TaskContext, slot int) {
	for {
		start := j.counter.Add(j.batch) - j.batch
		if start >= j.items {
			return
		}
		end := min(start+j.batch, j.items)
		j.fn(tc, int(start), int(end))
		j.processed[slot].Add(end - start)
	}
}

// NumTaskLists returns the number of task lists queued by the last Run,
// excluding the list run by the submitter.
func (j *ParallelForJob) NumTaskLists() int { return j.lists }

// Processed returns per-list processed item counts of the last Run. Slot 0
// is the submitter's list.
func (j *ParallelForJob) Processed() []int64 {
	out := make([]int64, len(j.processed))
	for i := range j.processed {
		out[i] = j.processed[i].Load()
	}
	return out
}

// ListJob applies a function to every element of a slice in parallel.
type ListJob[T any] struct {
	ParallelForJob
}

// NewListJob creates a reusable list job bound to pool.
func NewListJob[T any](pool *ThreadPool, opts ...JobOption) *ListJob[T] {
	j := &ListJob[T]{}
	j.initWaitable(pool, opts)
	return j
}

// Run calls fn for every element of items, in batches of at least
// minBatch elements, and waits for completion.
func (j *ListJob[T]) Run(tc *TaskContext, items []T, minBatch int, fn func(tc *TaskContext, item *T)) {
	j.ParallelForJob.Run(tc, len(items), minBatch, func(tc *TaskContext, start, end int) {
		for i := start; i < end; i++ {
			fn(tc, &items[i])
		}
	})
}
