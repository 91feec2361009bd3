package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-jobs/api"
)

func TestTLSFResource_Growth(t *testing.T) {
	up := &countingResource{}
	r, err := NewTLSFResource(up, 0)
	require.NoError(t, err)
	page := int64(PageSize())

	a, err := r.Allocate(100, 0)
	require.NoError(t, err)
	st := r.Stats()
	assert.Equal(t, int64(1), st.Grows)
	assert.Equal(t, page, st.Reserved, "first pool is one page")

	big, err := r.Allocate(3*int(page), 0)
	require.NoError(t, err)
	st = r.Stats()
	assert.Equal(t, int64(2), st.Grows)
	assert.GreaterOrEqual(t, st.Reserved, 7*page, "growth covers twice the request")
	assert.Equal(t, int64(2), st.Outstanding)
	assert.Equal(t, 2, up.live)

	r.Deallocate(a)
	r.Deallocate(big)
	require.NoError(t, r.Check())
	st = r.Stats()
	assert.Zero(t, st.InUse)
	assert.Zero(t, st.Outstanding)

	r.Release()
	assert.Zero(t, up.live)
	assert.Zero(t, r.Stats().Reserved)
}

func TestTLSFResource_InitialReservation(t *testing.T) {
	r, err := NewTLSFResource(nil, 64<<10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Stats().Grows)

	var blocks [][]byte
	for i := 0; i < 100; i++ {
		b, err := r.Allocate(256, 0)
		require.NoError(t, err)
		assert.True(t, r.Owns(b))
		blocks = append(blocks, b)
	}
	assert.Equal(t, int64(1), r.Stats().Grows, "fits in the initial pool")
	for _, b := range blocks {
		r.Deallocate(b)
	}
	require.NoError(t, r.Check())
}

func TestTLSFResource_OutOfMemory(t *testing.T) {
	var reported []int
	up := &failingResource{}
	r, err := NewTLSFResource(up, 0, WithOutOfMemory(func(size int) { reported = append(reported, size) }))
	require.NoError(t, err)

	_, err = r.Allocate(64, 0)
	assert.ErrorIs(t, err, api.ErrOutOfMemory)
	assert.Equal(t, []int{64}, reported)
	assert.Equal(t, 1, up.calls)

	_, err = NewTLSFResource(up, 4096)
	assert.Error(t, err)

	_, err = r.Allocate(-5, 0)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestTSTLSFResource_Concurrent(t *testing.T) {
	r, err := NewTSTLSFResource(nil, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			var held [][]byte
			for i := 0; i < 2000; i++ {
				b, err := r.Allocate(16+(seed*37+i*13)%900, 0)
				if !assert.NoError(t, err) {
					return
				}
				b[0] = byte(seed)
				held = append(held, b)
				if len(held) > 16 {
					assert.Equal(t, byte(seed), held[0][0])
					r.Deallocate(held[0])
					held = held[1:]
				}
			}
			for _, b := range held {
				r.Deallocate(b)
			}
		}(g)
	}
	wg.Wait()

	require.NoError(t, r.Check())
	assert.Zero(t, r.Stats().Outstanding)
	r.Release()
}
