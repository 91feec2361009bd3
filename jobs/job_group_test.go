package jobs

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

func TestJobGroup_ConcurrentProducers(t *testing.T) {
	p := newTestPool(t, 4, 0)
	g := NewJobGroup(p, WithTag("stress"))
	var count atomic.Int64

	var eg errgroup.Group
	for w := 0; w < 8; w++ {
		eg.Go(func() error {
			for i := 0; i < 500; i++ {
				g.PushJob(func(*TaskContext) { count.Add(1) })
			}
			return nil
		})
	}
	assert.NoError(t, eg.Wait())
	g.Wait(nil)

	assert.True(t, g.IsDone())
	assert.Equal(t, int64(4000), count.Load())
	assert.Zero(t, g.Pending())
}

func TestJobGroup_WorkSingleThreaded(t *testing.T) {
	p := newTestPool(t, 0, 0)
	g := NewJobGroup(p)
	var order []int
	for i := 0; i < 3; i++ {
		g.PushJob(func(*TaskContext) { order = append(order, i) })
	}
	assert.Equal(t, 3, g.Pending())

	assert.True(t, g.Work(nil))
	assert.True(t, g.Work(nil))
	assert.True(t, g.Work(nil))
	assert.False(t, g.Work(nil))
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.True(t, g.IsDone())

	// queued pool tasks find the bag empty
	assert.Equal(t, 3, p.WorkOnMainThreadNoBlock())
	assert.True(t, g.IsDone())
}

func TestJobGroup_PushFromTasks(t *testing.T) {
	p := newTestPool(t, 2, 0)
	g := NewJobGroup(p)
	var count atomic.Int32
	for i := 0; i < 10; i++ {
		g.PushJob(func(*TaskContext) {
			count.Add(1)
			g.PushJob(func(*TaskContext) { count.Add(1) })
		})
	}
	g.Wait(nil)
	assert.Equal(t, int32(20), count.Load())
}

func TestJobGroup_WaitInsideOwnFunctionPanics(t *testing.T) {
	p := newTestPool(t, 0, 0)
	g := NewJobGroup(p)
	var panicked bool
	g.PushJob(func(tc *TaskContext) {
		defer func() { panicked = recover() != nil }()
		g.Wait(tc)
	})
	g.Wait(nil)
	assert.True(t, panicked)
	assert.True(t, g.IsDone())
}
