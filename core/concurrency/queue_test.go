package concurrency

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSPSCQueue_EnqueueDequeue(t *testing.T) {
	q := NewSPSCQueue[int](3)
	require.Equal(t, 4, q.Cap(), "capacity rounds up to a power of two")

	for i := 0; i < 4; i++ {
		require.True(t, q.Enqueue(i))
	}
	assert.False(t, q.Enqueue(99), "enqueue on a full ring must fail")
	assert.Equal(t, 4, q.Len())

	for i := 0; i < 4; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.Dequeue()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestSPSCQueue_Concurrent(t *testing.T) {
	q := NewSPSCQueue[int](64)
	const n = 100000

	go func() {
		for i := 0; i < n; i++ {
			for !q.Enqueue(i) {
				runtime.Gosched()
			}
		}
	}()

	next := 0
	deadline := time.After(5 * time.Second)
	for next < n {
		select {
		case <-deadline:
			t.Fatalf("timeout: received %d/%d", next, n)
		default:
		}
		v, ok := q.Dequeue()
		if !ok {
			runtime.Gosched()
			continue
		}
		require.Equal(t, next, v, "SPSC must preserve order")
		next++
	}
}

func TestMPSCQueue_ManyProducersOneConsumer(t *testing.T) {
	q := NewMPSCQueue[int](256)
	const producers = 8
	const perProducer = 20000
	total := producers * perProducer

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				require.NoError(t, q.Enqueue(pid*perProducer+i))
			}
		}(p)
	}

	seen := make([]bool, total)
	lastPerProducer := make([]int, producers)
	for i := range lastPerProducer {
		lastPerProducer[i] = -1
	}
	received := 0
	deadline := time.After(10 * time.Second)
	for received < total {
		select {
		case <-deadline:
			t.Fatalf("timeout: received %d/%d", received, total)
		default:
		}
		v, ok := q.Dequeue()
		if !ok {
			runtime.Gosched()
			continue
		}
		require.False(t, seen[v], "item %d dequeued twice", v)
		seen[v] = true
		pid := v / perProducer
		require.Greater(t, v, lastPerProducer[pid], "items of one producer stay ordered")
		lastPerProducer[pid] = v
		received++
	}
	wg.Wait()

	_, ok := q.Dequeue()
	assert.False(t, ok, "no extra items")
	for i, s := range seen {
		if !s {
			t.Fatalf("item %d lost", i)
		}
	}
}

func TestMPSCQueue_Close(t *testing.T) {
	q := NewMPSCQueue[string](2)
	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.TryEnqueue("b"))
	assert.ErrorIs(t, q.TryEnqueue("c"), ErrQueueFull)

	q.Close()
	assert.True(t, q.Closed())
	assert.ErrorIs(t, q.Enqueue("d"), ErrQueueClosed)

	v, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", v, "items queued before close remain readable")
}

func TestDeque_BothEnds(t *testing.T) {
	d := NewDeque[int](3)
	require.True(t, d.PushBack(2))
	require.True(t, d.PushFront(1))
	require.True(t, d.PushBack(3))
	assert.True(t, d.Full())
	assert.False(t, d.PushFront(0))

	v, ok := d.PopFront()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = d.PopBack()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	// wrap around the ring
	require.True(t, d.PushBack(4))
	require.True(t, d.PushBack(5))
	var got []int
	for d.Len() > 0 {
		v, _ := d.PopFront()
		got = append(got, v)
	}
	assert.Equal(t, []int{2, 4, 5}, got)
	_, ok = d.PopBack()
	assert.False(t, ok)
}
