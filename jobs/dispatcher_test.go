package jobs

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-jobs/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, workers int) *JobScheduler {
	t.Helper()
	s := NewJobScheduler(workers+1, WithIdleWait(time.Millisecond), WithIdleCheck(20*time.Millisecond))
	t.Cleanup(s.Close)
	return s
}

func TestTimedJob_FiresOnceAfterDelay(t *testing.T) {
	s := newTestScheduler(t, 2)
	fired := make(chan time.Time, 4)
	j := NewTimedJob(func(*TaskContext) { fired <- time.Now() }, 20*time.Millisecond)

	start := time.Now()
	require.NoError(t, s.PushJob(j))
	select {
	case at := <-fired:
		assert.GreaterOrEqual(t, at.Sub(start), 20*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("timed job did not fire")
	}
	j.Wait(nil)
	assert.Eventually(t, func() bool { return j.State() == Inactive }, time.Second, time.Millisecond)
	assert.Equal(t, int64(1), j.Executions())

	// fires again once re-added
	require.NoError(t, s.PushJob(j))
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("re-added timed job did not fire")
	}
}

func TestTimedJob_AddWhileActive(t *testing.T) {
	s := newTestScheduler(t, 1)
	j := NewTimedJob(func(*TaskContext) {}, time.Hour)
	require.NoError(t, s.PushJob(j))
	assert.ErrorIs(t, s.PushJob(j), api.ErrAlreadyScheduled)
	assert.Eventually(t, func() bool { return s.Dispatcher().Pending() == 1 }, time.Second, time.Millisecond)
	assert.True(t, j.Cancel())
}

func TestTimedJob_CancelBeforeFire(t *testing.T) {
	s := newTestScheduler(t, 1)
	j := NewTimedJob(func(*TaskContext) {}, 100*time.Millisecond)
	require.NoError(t, s.PushJob(j))
	assert.True(t, j.Cancel())
	assert.False(t, j.Cancel())

	assert.Eventually(t, func() bool { return j.State() == Inactive }, time.Second, time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, j.Executions())
	assert.Zero(t, s.Dispatcher().Pending())
}

func TestTimedJob_Reschedule(t *testing.T) {
	s := newTestScheduler(t, 1)
	fired := make(chan struct{}, 1)
	j := NewTimedJob(func(*TaskContext) { fired <- struct{}{} }, time.Hour)
	require.NoError(t, s.PushJob(j))
	require.NoError(t, s.Dispatcher().Reschedule(j, 10*time.Millisecond))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("rescheduled job did not fire")
	}
	assert.Eventually(t, func() bool { return s.Dispatcher().Pending() == 0 }, time.Second, time.Millisecond)
}

func TestPeriodicJob_CadenceAndCancel(t *testing.T) {
	s := newTestScheduler(t, 2)
	var n atomic.Int64
	j := NewPeriodicJob(func(*TaskContext) { n.Add(1) }, 10*time.Millisecond)
	require.NoError(t, s.PushJob(j))

	require.Eventually(t, func() bool { return n.Load() >= 5 }, 2*time.Second, time.Millisecond)
	assert.True(t, j.Cancel())
	require.Eventually(t, func() bool { return j.State() == Inactive }, time.Second, time.Millisecond)
	j.Wait(nil)

	stopped := n.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, n.Load())
	assert.Equal(t, stopped, j.Executions())
	assert.Equal(t, 10*time.Millisecond, j.Interval())
}

func TestPeriodicJob_ExtraIntervalsBurst(t *testing.T) {
	s := newTestScheduler(t, 2)
	var mu sync.Mutex
	var times []time.Time
	j := NewPeriodicJob(func(*TaskContext) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
	}, 300*time.Millisecond, WithExtraIntervals(2))

	start := time.Now()
	require.NoError(t, s.PushJob(j))
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(times)
	}
	require.Eventually(t, func() bool { return count() >= 3 }, 3*time.Second, time.Millisecond)
	j.Cancel()

	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, times[0].Sub(start), 150*time.Millisecond)
	assert.Less(t, times[1].Sub(start), 150*time.Millisecond)
	assert.GreaterOrEqual(t, times[2].Sub(start), 300*time.Millisecond)
}

func TestPeriodicJob_OverlapSkipped(t *testing.T) {
	s := newTestScheduler(t, 2)
	j := NewPeriodicJob(func(*TaskContext) { time.Sleep(25 * time.Millisecond) }, 5*time.Millisecond)
	require.NoError(t, s.PushJob(j))

	assert.Eventually(t, func() bool { return j.Skipped() > 0 }, 2*time.Second, time.Millisecond)
	assert.True(t, j.Cancel())
	assert.Eventually(t, func() bool { return j.State() == Inactive }, time.Second, time.Millisecond)
	j.Wait(nil)
	assert.GreaterOrEqual(t, s.Dispatcher().Stats().Skipped, j.Skipped())
}

func TestPeriodicJob_AdvanceRules(t *testing.T) {
	j := NewPeriodicJob(func(*TaskContext) {}, 10*time.Millisecond, WithMaxIntervalsLate(2))
	j.deadline = 0
	j.advance(100_000)
	assert.Equal(t, int64(110_000), j.deadline, "too late: restart one interval from now")
	assert.Equal(t, int64(1), j.Resets())

	j.advance(115_000)
	assert.Equal(t, int64(120_000), j.deadline, "on time: next boundary")

	catchUp := NewPeriodicJob(func(*TaskContext) {}, 10*time.Millisecond)
	catchUp.deadline = 0
	catchUp.advance(100_000)
	assert.Equal(t, int64(10_000), catchUp.deadline)
	assert.Zero(t, catchUp.Resets())

	burst := NewPeriodicJob(func(*TaskContext) {}, 10*time.Millisecond, WithExtraIntervals(2))
	burst.start(1_000, 0)
	assert.Equal(t, int64(1_000), burst.deadline)
	burst.advance(1_200)
	assert.Equal(t, int64(1_200), burst.deadline)
	burst.advance(1_300)
	assert.Equal(t, int64(11_200), burst.deadline)
}

func TestPeriodicJob_PreStartOffset(t *testing.T) {
	j := NewPeriodicJob(func(*TaskContext) {}, 10*time.Millisecond, WithPreStartOffset(2*time.Millisecond))
	j.start(0, 0)
	assert.Equal(t, int64(10_000), j.deadline)
	assert.Equal(t, int64(8_000), j.dueAt())
}

func TestJobDispatcher_CloseDeactivates(t *testing.T) {
	p := newTestPool(t, 1, 0)
	d := NewJobDispatcher(p, DispatcherConfig{})
	j := NewTimedJob(func(*TaskContext) {}, time.Hour)
	require.NoError(t, d.Add(j))
	d.Close()

	assert.Equal(t, Inactive, j.State())
	assert.Zero(t, d.Pending())
	assert.ErrorIs(t, d.Add(j), api.ErrSchedulerClosed)
	assert.Equal(t, Inactive, j.State())
	d.Close()
}

func TestJobDispatcher_SortedPending(t *testing.T) {
	p := newTestPool(t, 1, 0)
	d := NewJobDispatcher(p, DispatcherConfig{IdleCheck: time.Hour})
	defer d.Close()

	order := make(chan int, 3)
	delays := []time.Duration{60, 20, 40}
	for i, ms := range delays {
		require.NoError(t, d.Add(NewTimedJob(func(*TaskContext) { order <- i }, ms*time.Millisecond)))
	}
	got := make([]int, 0, 3)
	for range delays {
		select {
		case i := <-order:
			got = append(got, i)
		case <-time.After(2 * time.Second):
			t.Fatal("timed jobs did not fire")
		}
	}
	assert.Equal(t, []int{1, 2, 0}, got)
}

func TestJobDispatcher_AddCancelConcurrent(t *testing.T) {
	p := newTestPool(t, 1, 0)
	d := NewJobDispatcher(p, DispatcherConfig{IdleCheck: time.Millisecond})
	defer d.Close()

	for i := 0; i < 50; i++ {
		j := NewTimedJob(func(*TaskContext) {}, time.Hour)
		var wg sync.WaitGroup
		wg.Add(4)
		go func() { defer wg.Done(); _ = d.Add(j) }()
		go func() { defer wg.Done(); j.Cancel() }()
		go func() { defer wg.Done(); j.Wait(nil) }()
		go func() { defer wg.Done(); _ = d.Reschedule(j, time.Hour) }()
		wg.Wait()

		j.Cancel()
		assert.Eventually(t, func() bool { return j.State() == Inactive }, time.Second, time.Millisecond)
	}
	assert.Eventually(t, func() bool { return d.Pending() == 0 }, time.Second, time.Millisecond)
	assert.Zero(t, d.Stats().Fired)
}

func TestTimedState_String(t *testing.T) {
	assert.Equal(t, "inactive", Inactive.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "unknown", TimedState(9).String())
}
