// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Memory resource contracts: allocator-shaped sources of raw byte blocks.

package api

// Resource hands out raw memory blocks. A block returned by Allocate has
// len == cap == size and must be given back to the same resource.
type Resource interface {
	// Allocate returns a block of exactly size bytes aligned to align
	// (a power of two, 0 means the resource default).
	Allocate(size, align int) ([]byte, error)

	// Deallocate returns a block previously obtained from Allocate.
	Deallocate(b []byte)
}

// ResourceStats aggregates allocation accounting for a resource.
type ResourceStats struct {
	Reserved    int64 // bytes obtained from the upstream resource
	InUse       int64 // bytes currently handed out
	Outstanding int64 // blocks currently handed out
	Cached      int64 // blocks parked in free-list caches
	Grows       int64 // number of upstream growth events
	Fallbacks   int64 // allocations served by a fallback path
}

// StatsReporter is implemented by resources exposing accounting.
type StatsReporter interface {
	Stats() ResourceStats
}
