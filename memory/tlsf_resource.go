// File: memory/tlsf_resource.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Growable TLSF resource. Pool blocks come from an upstream resource; when
// no free block fits, a new pool of max(2*reserved, 2*request) bytes rounded
// to the page size is registered and the allocation retried.

package memory

import (
	"fmt"

	"github.com/momentics/hioload-jobs/api"
	"github.com/momentics/hioload-jobs/core/concurrency"
)

// TLSFResource is an api.Resource backed by a TLSF allocator. It is not safe
// for concurrent use; see NewTSTLSFResource.
type TLSFResource struct {
	tlsf     *TLSF
	upstream api.Resource
	chunks   [][]byte
	reserved int64
	grows    int64
	opts     options
}

// NewTLSFResource creates a resource that grows from upstream. initial bytes
// are reserved up front when positive. A nil upstream means Default().
func NewTLSFResource(upstream api.Resource, initial int, opts ...Option) (*TLSFResource, error) {
	if upstream == nil {
		upstream = Default()
	}
	r := &TLSFResource{
		tlsf:     NewTLSF(),
		upstream: upstream,
		opts:     buildOptions("tlsf", opts),
	}
	if initial > 0 {
		if err := r.grow(alignUp(initial+poolOverhead, PageSize())); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// growSize computes the next pool size for a failed request.
func (r *TLSFResource) growSize(size, align int) int {
	want := 2 * int(r.reserved)
	if req := 2*(size+align) + poolOverhead; req > want {
		want = req
	}
	return alignUp(want, PageSize())
}

func (r *TLSFResource) grow(n int) error {
	mem, err := r.upstream.Allocate(n, alignSize)
	if err != nil {
		return err
	}
	if !r.tlsf.AddPool(mem) {
		r.upstream.Deallocate(mem)
		return fmt.Errorf("memory: pool of %d bytes rejected: %w", n, api.ErrInvalidArgument)
	}
	r.chunks = append(r.chunks, mem)
	r.reserved += int64(len(mem))
	r.grows++
	r.opts.metrics.MemoryGrown(r.opts.name, len(mem))
	r.opts.metrics.MemoryReserved(r.opts.name, r.reserved)
	r.opts.logger.Debug("pool added", api.F("resource", r.opts.name), api.F("bytes", len(mem)),
		api.F("reserved", r.reserved))
	return nil
}

// AddPool registers caller-owned memory with the allocator. The memory is
// never returned upstream.
func (r *TLSFResource) AddPool(mem []byte) bool {
	return r.tlsf.AddPool(mem)
}

// Allocate implements api.Resource.
func (r *TLSFResource) Allocate(size, align int) ([]byte, error) {
	if size < 0 || size > MaxAllocation() {
		return nil, fmt.Errorf("memory: size %d: %w", size, api.ErrInvalidArgument)
	}
	align, err := normAlign(align)
	if err != nil {
		return nil, err
	}
	if b := r.tlsf.Allocate(size, align); b != nil {
		return b, nil
	}
	if err := r.grow(r.growSize(size, align)); err != nil {
		r.opts.outOfMemory(size)
		return nil, fmt.Errorf("memory: %s grow for %d bytes: %w", r.opts.name, size, api.ErrOutOfMemory)
	}
	b := r.tlsf.Allocate(size, align)
	if b == nil {
		r.opts.outOfMemory(size)
		return nil, fmt.Errorf("memory: %s: %w", r.opts.name, api.ErrOutOfMemory)
	}
	return b, nil
}

// Deallocate implements api.Resource.
func (r *TLSFResource) Deallocate(b []byte) {
	r.tlsf.Deallocate(b)
}

// Owns reports whether b was handed out by this resource.
func (r *TLSFResource) Owns(b []byte) bool { return r.tlsf.Owns(b) }

// Check validates allocator structure.
func (r *TLSFResource) Check() error { return r.tlsf.Check() }

// Stats implements api.StatsReporter.
func (r *TLSFResource) Stats() api.ResourceStats {
	return api.ResourceStats{
		Reserved:    r.reserved,
		InUse:       r.tlsf.Used(),
		Outstanding: r.tlsf.Blocks(),
		Grows:       r.grows,
	}
}

// Release returns every pool to upstream and resets the allocator.
// Outstanding blocks become invalid.
func (r *TLSFResource) Release() {
	for _, c := range r.chunks {
		r.upstream.Deallocate(c)
	}
	r.chunks = nil
	r.reserved = 0
	r.tlsf = NewTLSF()
	r.opts.metrics.MemoryReserved(r.opts.name, 0)
}

// TSTLSFResource serializes a TLSFResource behind a mutex.
type TSTLSFResource struct {
	mu concurrency.Mutex
	r  *TLSFResource
}

// NewTSTLSFResource creates a thread-safe growable TLSF resource.
func NewTSTLSFResource(upstream api.Resource, initial int, opts ...Option) (*TSTLSFResource, error) {
	r, err := NewTLSFResource(upstream, initial, opts...)
	if err != nil {
		return nil, err
	}
	return &TSTLSFResource{r: r}, nil
}

func (t *TSTLSFResource) Allocate(size, align int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.r.Allocate(size, align)
}

func (t *TSTLSFResource) Deallocate(b []byte) {
	concurrency.Locked(&t.mu, func() { t.r.Deallocate(b) })
}

func (t *TSTLSFResource) Stats() api.ResourceStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.r.Stats()
}

func (t *TSTLSFResource) Check() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.r.Check()
}

func (t *TSTLSFResource) Release() {
	concurrency.Locked(&t.mu, t.r.Release)
}

var (
	_ api.Resource      = (*TLSFResource)(nil)
	_ api.Resource      = (*TSTLSFResource)(nil)
	_ api.StatsReporter = (*TSTLSFResource)(nil)
)
