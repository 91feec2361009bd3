// File: memory/monotonic.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bump allocator over chunks taken from an upstream resource.

package memory

import (
	"fmt"
	"unsafe"

	"github.com/momentics/hioload-jobs/api"
	"github.com/momentics/hioload-jobs/core/concurrency"
)

// MonotonicBuffer hands out memory by advancing a cursor. Deallocate is a
// no-op; Release gives every chunk back upstream at once. Each new chunk is
// twice the size of the previous one. Not safe for concurrent use.
type MonotonicBuffer struct {
	upstream api.Resource
	next     int
	chunks   [][]byte
	cur      []byte
	off      int
	reserved int64
	opts     options
}

// NewMonotonicBuffer creates a buffer whose first chunk holds initial bytes.
func NewMonotonicBuffer(upstream api.Resource, initial int, opts ...Option) *MonotonicBuffer {
	if upstream == nil {
		upstream = Default()
	}
	if initial <= 0 {
		initial = PageSize()
	}
	return &MonotonicBuffer{upstream: upstream, next: initial, opts: buildOptions("monotonic", opts)}
}

// Allocate implements api.Resource.
func (m *MonotonicBuffer) Allocate(size, align int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("memory: size %d: %w", size, api.ErrInvalidArgument)
	}
	align, err := normAlign(align)
	if err != nil {
		return nil, err
	}
	need := size
	if need == 0 {
		need = 1
	}
	if off, ok := m.fit(need, align); ok {
		m.off = off + need
		return clip(m.cur, off, size), nil
	}

	n := m.next
	for n < need+align {
		n *= 2
	}
	chunk, err := m.upstream.Allocate(n, align)
	if err != nil {
		m.opts.outOfMemory(size)
		return nil, fmt.Errorf("memory: monotonic chunk of %d bytes: %w", n, api.ErrOutOfMemory)
	}
	m.chunks = append(m.chunks, chunk)
	m.cur, m.off = chunk, 0
	m.next = n * 2
	m.reserved += int64(n)
	m.opts.metrics.MemoryGrown(m.opts.name, n)

	off, _ := m.fit(need, align)
	m.off = off + need
	return clip(m.cur, off, size), nil
}

func (m *MonotonicBuffer) fit(need, align int) (int, bool) {
	if m.cur == nil {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(m.cur)))
	off := int(alignUptr(base+uintptr(m.off), uintptr(align)) - base)
	if off+need > len(m.cur) {
		return 0, false
	}
	return off, true
}

// Deallocate is a no-op; memory is reclaimed by Release.
func (m *MonotonicBuffer) Deallocate([]byte) {}

// Release returns every chunk to upstream. Blocks handed out earlier become
// invalid.
func (m *MonotonicBuffer) Release() {
	for _, c := range m.chunks {
		m.upstream.Deallocate(c)
	}
	m.chunks, m.cur, m.off, m.reserved = nil, nil, 0, 0
}

// Stats implements api.StatsReporter.
func (m *MonotonicBuffer) Stats() api.ResourceStats {
	return api.ResourceStats{Reserved: m.reserved, Grows: int64(len(m.chunks))}
}

// TSMonotonicBuffer serializes a MonotonicBuffer behind a mutex so it can
// feed a shared arena and be inspected from probes.
type TSMonotonicBuffer struct {
	mu concurrency.Mutex
	m  *MonotonicBuffer
}

// NewTSMonotonicBuffer creates a thread-safe monotonic buffer.
func NewTSMonotonicBuffer(upstream api.Resource, initial int, opts ...Option) *TSMonotonicBuffer {
	return &TSMonotonicBuffer{m: NewMonotonicBuffer(upstream, initial, opts...)}
}

func (t *TSMonotonicBuffer) Allocate(size, align int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m.Allocate(size, align)
}

func (t *TSMonotonicBuffer) Deallocate([]byte) {}

func (t *TSMonotonicBuffer) Stats() api.ResourceStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m.Stats()
}

func (t *TSMonotonicBuffer) Release() {
	concurrency.Locked(&t.mu, t.m.Release)
}

var (
	_ api.Resource      = (*MonotonicBuffer)(nil)
	_ api.Resource      = (*TSMonotonicBuffer)(nil)
	_ api.StatsReporter = (*TSMonotonicBuffer)(nil)
)
