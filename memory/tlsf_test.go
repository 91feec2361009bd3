package memory

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTLSF(t *testing.T, size int) *TLSF {
	t.Helper()
	mem, err := HeapResource{}.Allocate(size, alignSize)
	require.NoError(t, err)
	tl := NewTLSF()
	require.True(t, tl.AddPool(mem))
	return tl
}

func countBlocks(tl *TLSF, pool int) (free, used int) {
	ref := uint64(pool) << refPoolShift
	for tl.blockSize(ref) != 0 {
		if tl.isFree(ref) {
			free++
		} else {
			used++
		}
		ref = tl.physNext(ref)
	}
	return free, used
}

func TestMapping(t *testing.T) {
	fl, sl := mappingInsert(16)
	assert.Equal(t, 0, fl)
	assert.Equal(t, 1, sl)

	fl, sl = mappingInsert(smallBlock)
	assert.Equal(t, 1, fl)
	assert.Equal(t, 0, sl)

	// search rounds up to the next class
	fl, sl = mappingSearch(smallBlock + 1)
	assert.Equal(t, 1, fl)
	assert.Equal(t, 1, sl)
}

func TestTLSF_Coalescing(t *testing.T) {
	tl := newTestTLSF(t, 4096)
	free, used := countBlocks(tl, 0)
	assert.Equal(t, 1, free)
	assert.Equal(t, 0, used)

	a := tl.Allocate(1000, 0)
	b := tl.Allocate(1000, 0)
	c := tl.Allocate(1000, 0)
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.NotNil(t, c)
	assert.Len(t, a, 1000)
	assert.Equal(t, 1000, cap(a))
	require.NoError(t, tl.Check())

	tl.Deallocate(b)
	require.NoError(t, tl.Check())
	tl.Deallocate(a)
	require.NoError(t, tl.Check())
	tl.Deallocate(c)
	require.NoError(t, tl.Check())

	free, used = countBlocks(tl, 0)
	assert.Equal(t, 1, free, "all neighbours merge back into one block")
	assert.Equal(t, 0, used)
	assert.Zero(t, tl.Used())
	assert.Zero(t, tl.Blocks())

	assert.NotNil(t, tl.Allocate(2000, 0))
}

func TestTLSF_Alignment(t *testing.T) {
	tl := newTestTLSF(t, 8192)
	for _, align := range []int{16, 64, 256, 1024} {
		b := tl.Allocate(100, align)
		require.NotNil(t, b, "align %d", align)
		assert.Zero(t, addrOf(b)%uintptr(align), "align %d", align)
		require.NoError(t, tl.Check())
	}
}

func TestTLSF_Exhaustion(t *testing.T) {
	tl := newTestTLSF(t, 1024)
	assert.Nil(t, tl.Allocate(4096, 0))
	assert.Nil(t, tl.Allocate(-1, 0))
}

func TestTLSF_ContractViolations(t *testing.T) {
	tl := newTestTLSF(t, 4096)
	b := tl.Allocate(64, 0)
	require.NotNil(t, b)
	tl.Deallocate(b)
	assert.Panics(t, func() { tl.Deallocate(b) }, "double free")
	assert.Panics(t, func() { tl.Deallocate(make([]byte, 64)) }, "foreign block")
}

func TestTLSF_RandomWorkload(t *testing.T) {
	tl := newTestTLSF(t, 1<<20)
	rng := rand.New(rand.NewSource(7))
	type live struct {
		b   []byte
		tag byte
	}
	var blocks []live

	for i := 0; i < 5000; i++ {
		if len(blocks) > 0 && rng.Intn(3) == 0 {
			j := rng.Intn(len(blocks))
			l := blocks[j]
			for _, v := range l.b {
				require.Equal(t, l.tag, v, "block contents must survive neighbour activity")
			}
			tl.Deallocate(l.b)
			blocks[j] = blocks[len(blocks)-1]
			blocks = blocks[:len(blocks)-1]
			continue
		}
		size := 1 + rng.Intn(3000)
		b := tl.Allocate(size, 0)
		if b == nil {
			continue
		}
		tag := byte(i)
		for k := range b {
			b[k] = tag
		}
		blocks = append(blocks, live{b: b, tag: tag})
		if i%250 == 0 {
			require.NoError(t, tl.Check())
		}
	}
	for _, l := range blocks {
		tl.Deallocate(l.b)
	}
	require.NoError(t, tl.Check())
	free, used := countBlocks(tl, 0)
	assert.Equal(t, 1, free)
	assert.Equal(t, 0, used)
}

func TestTLSF_MultiplePools(t *testing.T) {
	tl := newTestTLSF(t, 1024)
	mem, err := HeapResource{}.Allocate(1024, alignSize)
	require.NoError(t, err)
	require.True(t, tl.AddPool(mem))
	assert.Equal(t, 2, tl.Pools())

	var got [][]byte
	for {
		b := tl.Allocate(200, 0)
		if b == nil {
			break
		}
		got = append(got, b)
	}
	assert.GreaterOrEqual(t, len(got), 6, "both pools serve allocations")
	for _, b := range got {
		assert.True(t, tl.Owns(b))
		tl.Deallocate(b)
	}
	require.NoError(t, tl.Check())
	assert.False(t, tl.AddPool(make([]byte, 8)))
}
