package adapters_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-jobs/adapters"
	"github.com/momentics/hioload-jobs/api"
	"github.com/momentics/hioload-jobs/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorAdapterSubmit(t *testing.T) {
	pool := jobs.NewThreadPool(jobs.Config{Workers: 2, LongWorkers: 1})
	exec := adapters.NewExecutorAdapter(pool)
	assert.Equal(t, 2, exec.NumWorkers())

	var wg sync.WaitGroup
	var n atomic.Int32
	wg.Add(101)
	for i := 0; i < 100; i++ {
		require.NoError(t, exec.Submit(func() { n.Add(1); wg.Done() }))
	}
	require.NoError(t, exec.SubmitLong(func() { n.Add(1); wg.Done() }))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submitted tasks did not run")
	}
	assert.Equal(t, int32(101), n.Load())

	assert.ErrorIs(t, exec.Submit(nil), api.ErrInvalidArgument)
	pool.Close()
	assert.ErrorIs(t, exec.Submit(func() {}), api.ErrSchedulerClosed)
	assert.ErrorIs(t, exec.SubmitLong(func() {}), api.ErrSchedulerClosed)
}

func TestExecutorAdapterSurvivesPanics(t *testing.T) {
	pool := jobs.NewThreadPool(jobs.Config{Workers: 1})
	defer pool.Close()
	exec := adapters.NewExecutorAdapter(pool)

	ran := make(chan struct{})
	require.NoError(t, exec.Submit(func() { panic("task failure") }))
	require.NoError(t, exec.Submit(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}
	assert.Eventually(t, func() bool { return pool.Stats().Panics == 1 }, time.Second, time.Millisecond)
}

func TestExecutorAdapterSubmitRacingClose(t *testing.T) {
	for i := 0; i < 20; i++ {
		pool := jobs.NewThreadPool(jobs.Config{Workers: 2, LongWorkers: 1, IdleWait: time.Millisecond})
		exec := adapters.NewExecutorAdapter(pool)
		var accepted, ran atomic.Int64

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func(long bool) {
				defer wg.Done()
				submit := exec.Submit
				if long {
					submit = exec.SubmitLong
				}
				for k := 0; k < 200; k++ {
					if err := submit(func() { ran.Add(1) }); err != nil {
						assert.ErrorIs(t, err, api.ErrSchedulerClosed)
						return
					}
					accepted.Add(1)
				}
			}(g%2 == 1)
		}
		assert.NotPanics(t, pool.Close)
		wg.Wait()
		assert.Equal(t, accepted.Load(), ran.Load())
	}
}
