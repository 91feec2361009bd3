// File: jobs/task.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Task handles and the per-goroutine execution context.

package jobs

// NoQueue is returned by DoJobWork when no queue held runnable work.
const NoQueue = -1

// Runner is implemented by jobs whose tasks sit in pool queues. RunTask
// executes one task of the job on the goroutine described by tc.
type Runner interface {
	RunTask(tc *TaskContext)
}

// Task is one enqueued occurrence of a job's work.
type Task struct {
	job Runner
}

type workerKind uint8

const (
	kindMain workerKind = iota
	kindWorker
	kindLong
	kindCompanion
)

// TaskContext describes the goroutine executing a task. A context belongs
// to exactly one goroutine and must not be shared.
type TaskContext struct {
	pool       *ThreadPool
	queueIndex int
	kind       workerKind
	current    *BaseJob
}

// Pool returns the pool the context belongs to.
func (tc *TaskContext) Pool() *ThreadPool { return tc.pool }

// QueueIndex returns the queue owned by the goroutine: 0 for the main
// thread, NoQueue for companion workers.
func (tc *TaskContext) QueueIndex() int { return tc.queueIndex }

// CurrentJob returns the job whose task is executing, or nil.
func (tc *TaskContext) CurrentJob() *BaseJob { return tc.current }

// IsIO reports whether the goroutine is a long/IO worker.
func (tc *TaskContext) IsIO() bool { return tc.kind == kindLong }

// IsMain reports whether the goroutine is outside the pool workers.
func (tc *TaskContext) IsMain() bool { return tc.kind == kindMain }

func (tc *TaskContext) isWorker() bool {
	return tc.kind == kindWorker || tc.kind == kindCompanion
}
