// File: memory/virtual.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// VirtualResource reserves page-rounded regions directly from the OS.
// The platform layer (virtual_linux.go, virtual_windows.go, virtual_other.go)
// supplies sysAlloc/sysFree/sysPageSize.

package memory

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-jobs/api"
)

// PageSize returns the OS page size.
func PageSize() int { return sysPageSize() }

type region struct {
	mem     []byte
	virtual bool
}

// VirtualResource maps whole pages per allocation. Reservations beyond the
// quota, over-page alignment and OS failures are served from the Go heap
// and counted as fallbacks. It is safe for concurrent use.
type VirtualResource struct {
	mu        sync.Mutex
	quota     int64
	reserved  int64
	regions   map[uintptr]region
	fallbacks int64
	heap      HeapResource
	opts      options
}

// NewVirtualResource creates a resource limited to quota bytes of mapped
// memory; quota <= 0 means unlimited.
func NewVirtualResource(quota int64, opts ...Option) *VirtualResource {
	return &VirtualResource{
		quota:   quota,
		regions: make(map[uintptr]region),
		opts:    buildOptions("virtual", opts),
	}
}

// Allocate implements api.Resource.
func (v *VirtualResource) Allocate(size, align int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("memory: size %d: %w", size, api.ErrInvalidArgument)
	}
	align, err := normAlign(align)
	if err != nil {
		return nil, err
	}
	page := PageSize()
	n := alignUp(size, page)
	if n == 0 {
		n = page
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if align <= page && (v.quota <= 0 || v.reserved+int64(n) <= v.quota) {
		mem, err := sysAlloc(n)
		if err == nil {
			v.regions[addrOf(mem)] = region{mem: mem, virtual: true}
			v.reserved += int64(n)
			v.opts.metrics.MemoryReserved(v.opts.name, v.reserved)
			return clip(mem, 0, size), nil
		}
		v.opts.logger.Warn("virtual reservation failed, using heap",
			api.F("resource", v.opts.name), api.F("bytes", n), api.F("error", err))
	}

	mem, err := v.heap.Allocate(size, align)
	if err != nil {
		return nil, err
	}
	v.regions[addrOf(mem)] = region{mem: mem}
	v.fallbacks++
	return mem, nil
}

// Deallocate implements api.Resource. Unknown blocks panic.
func (v *VirtualResource) Deallocate(b []byte) {
	addr := addrOf(b)
	v.mu.Lock()
	defer v.mu.Unlock()
	r, ok := v.regions[addr]
	assertf(ok, "virtual: block %#x not owned by resource", addr)
	delete(v.regions, addr)
	if !r.virtual {
		return
	}
	v.reserved -= int64(len(r.mem))
	v.opts.metrics.MemoryReserved(v.opts.name, v.reserved)
	if err := sysFree(r.mem); err != nil {
		v.opts.logger.Error("virtual release failed", api.F("resource", v.opts.name), api.F("error", err))
	}
}

// Stats implements api.StatsReporter.
func (v *VirtualResource) Stats() api.ResourceStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return api.ResourceStats{
		Reserved:    v.reserved,
		Outstanding: int64(len(v.regions)),
		Fallbacks:   v.fallbacks,
	}
}

// Supported reports whether the platform maps memory directly.
func (v *VirtualResource) Supported() bool { return sysSupported }

var _ api.StatsReporter = (*VirtualResource)(nil)
