// File: memory/multipool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed block-size pools carved from upstream chunks.

package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/momentics/hioload-jobs/api"
)

// PoolConfig describes one fixed-size pool of a MultiPoolResource.
type PoolConfig struct {
	BlockSize      int
	BlocksPerChunk int
}

type fixedPool struct {
	cfg    PoolConfig
	stride int
	free   [][]byte
	total  int
}

type chunkRef struct {
	base uintptr
	end  uintptr
	pool int
	mem  []byte
}

// MultiPoolResource serves each request from the smallest pool whose block
// size fits; requests larger than every block, or aligned beyond 16 bytes,
// go upstream. It is safe for concurrent use.
type MultiPoolResource struct {
	mu          sync.Mutex
	upstream    api.Resource
	pools       []fixedPool
	chunks      []chunkRef // sorted by base
	outstanding int64
	fallbacks   int64
	reserved    int64
	opts        options
}

// NewMultiPoolResource creates pools for the given configurations.
func NewMultiPoolResource(upstream api.Resource, cfgs []PoolConfig, opts ...Option) (*MultiPoolResource, error) {
	if upstream == nil {
		upstream = Default()
	}
	r := &MultiPoolResource{upstream: upstream, opts: buildOptions("multipool", opts)}
	for _, c := range cfgs {
		if c.BlockSize <= 0 || c.BlocksPerChunk <= 0 {
			return nil, api.NewError(api.ErrCodeInvalidArgument, "invalid pool config").
				WithContext("block_size", c.BlockSize).WithContext("blocks_per_chunk", c.BlocksPerChunk)
		}
		r.pools = append(r.pools, fixedPool{cfg: c, stride: alignUp(c.BlockSize, alignSize)})
	}
	sort.Slice(r.pools, func(i, j int) bool { return r.pools[i].cfg.BlockSize < r.pools[j].cfg.BlockSize })
	return r, nil
}

func (r *MultiPoolResource) poolFor(size, align int) int {
	if align > alignSize {
		return -1
	}
	i := sort.Search(len(r.pools), func(i int) bool { return r.pools[i].cfg.BlockSize >= size })
	if i == len(r.pools) {
		return -1
	}
	return i
}

func (r *MultiPoolResource) refill(idx int) error {
	p := &r.pools[idx]
	n := p.stride * p.cfg.BlocksPerChunk
	mem, err := r.upstream.Allocate(n, alignSize)
	if err != nil {
		return err
	}
	base := addrOf(mem)
	c := chunkRef{base: base, end: base + uintptr(n), pool: idx, mem: mem}
	pos := sort.Search(len(r.chunks), func(i int) bool { return r.chunks[i].base > base })
	r.chunks = append(r.chunks, chunkRef{})
	copy(r.chunks[pos+1:], r.chunks[pos:])
	r.chunks[pos] = c

	for off := n - p.stride; off >= 0; off -= p.stride {
		p.free = append(p.free, mem[off:off+p.stride:off+p.stride])
	}
	p.total += p.cfg.BlocksPerChunk
	r.reserved += int64(n)
	r.opts.metrics.MemoryGrown(r.opts.name, n)
	return nil
}

// Allocate implements api.Resource.
func (r *MultiPoolResource) Allocate(size, align int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("memory: size %d: %w", size, api.ErrInvalidArgument)
	}
	align, err := normAlign(align)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.poolFor(size, align)
	if idx < 0 {
		b, err := r.upstream.Allocate(size, align)
		if err != nil {
			r.opts.outOfMemory(size)
			return nil, err
		}
		r.fallbacks++
		return b, nil
	}
	p := &r.pools[idx]
	if len(p.free) == 0 {
		if err := r.refill(idx); err != nil {
			r.opts.outOfMemory(size)
			return nil, fmt.Errorf("memory: %s refill: %w", r.opts.name, api.ErrOutOfMemory)
		}
	}
	n := len(p.free)
	b := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	r.outstanding++
	return clip(b, 0, size), nil
}

func (r *MultiPoolResource) chunkOf(addr uintptr) (int, bool) {
	i := sort.Search(len(r.chunks), func(i int) bool { return r.chunks[i].base > addr }) - 1
	if i < 0 || addr >= r.chunks[i].end {
		return 0, false
	}
	return i, true
}

// Deallocate implements api.Resource.
func (r *MultiPoolResource) Deallocate(b []byte) {
	addr := addrOf(b)
	r.mu.Lock()
	ci, ok := r.chunkOf(addr)
	if !ok {
		r.mu.Unlock()
		r.upstream.Deallocate(b)
		return
	}
	c := r.chunks[ci]
	p := &r.pools[c.pool]
	off := int(addr - c.base)
	assertf(off%p.stride == 0, "multipool: block %#x is not a block start", addr)
	p.free = append(p.free, c.mem[off:off+p.stride:off+p.stride])
	r.outstanding--
	r.mu.Unlock()
}

// Release returns every chunk upstream. Outstanding pooled blocks become invalid.
func (r *MultiPoolResource) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.chunks {
		r.upstream.Deallocate(c.mem)
	}
	r.chunks = nil
	for i := range r.pools {
		r.pools[i].free = nil
		r.pools[i].total = 0
	}
	r.outstanding, r.reserved = 0, 0
}

// Stats implements api.StatsReporter.
func (r *MultiPoolResource) Stats() api.ResourceStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cached int64
	for _, p := range r.pools {
		cached += int64(len(p.free))
	}
	return api.ResourceStats{
		Reserved:    r.reserved,
		Outstanding: r.outstanding,
		Cached:      cached,
		Grows:       int64(len(r.chunks)),
		Fallbacks:   r.fallbacks,
	}
}
