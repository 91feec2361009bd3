// File: memory/resource.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Common helpers shared by all resources: alignment, address lookup,
// options and the Go-heap resource.

package memory

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/momentics/hioload-jobs/api"
)

// DefaultAlignment is the alignment used when a caller passes align == 0.
const DefaultAlignment = 16

func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("memory: "+format, args...))
	}
}

func isPow2(x int) bool { return x > 0 && x&(x-1) == 0 }

func alignUp(n, align int) int { return (n + align - 1) &^ (align - 1) }

func alignUptr(p, align uintptr) uintptr { return (p + align - 1) &^ (align - 1) }

// normAlign validates align and applies the default.
func normAlign(align int) (int, error) {
	if align == 0 {
		return DefaultAlignment, nil
	}
	if !isPow2(align) {
		return 0, fmt.Errorf("memory: alignment %d: %w", align, api.ErrInvalidArgument)
	}
	return align, nil
}

// addrOf returns the address of the first byte of b, or 0 when b has no
// backing array.
func addrOf(b []byte) uintptr {
	if cap(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// clip returns b[off:off+size] with capacity clipped to size. Zero-size
// requests keep one byte of capacity so the block still carries its address.
func clip(b []byte, off, size int) []byte {
	if size == 0 {
		return b[off : off : off+1]
	}
	return b[off : off+size : off+size]
}

// options configure the accounting side of a resource.
type options struct {
	name    string
	metrics api.Metrics
	logger  api.Logger
	onOOM   func(size int)
}

// Option configures a resource.
type Option func(*options)

// WithName sets the resource label used in metrics and logs.
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithMetrics routes grow/exhaustion events to m.
func WithMetrics(m api.Metrics) Option { return func(o *options) { o.metrics = m } }

// WithLogger sets the resource logger.
func WithLogger(l api.Logger) Option { return func(o *options) { o.logger = l } }

// WithOutOfMemory installs the out-of-memory notification handler. It is
// called with the failing request size before ErrOutOfMemory is returned.
func WithOutOfMemory(fn func(size int)) Option { return func(o *options) { o.onOOM = fn } }

func buildOptions(defName string, opts []Option) options {
	o := options{name: defName, metrics: api.NopMetrics{}, logger: api.NopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *options) outOfMemory(size int) {
	o.metrics.MemoryExhausted(o.name)
	o.logger.Warn("out of memory", api.F("resource", o.name), api.F("size", size))
	if o.onOOM != nil {
		o.onOOM(size)
	}
}

// HeapResource allocates from the Go heap. Blocks are released by the GC;
// Deallocate is a no-op.
type HeapResource struct{}

// Allocate returns a zeroed heap block of size bytes aligned to align.
func (HeapResource) Allocate(size, align int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("memory: size %d: %w", size, api.ErrInvalidArgument)
	}
	align, err := normAlign(align)
	if err != nil {
		return nil, err
	}
	n := size
	if n == 0 {
		n = 1
	}
	buf := make([]byte, n+align-1)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	off := int(alignUptr(base, uintptr(align)) - base)
	return clip(buf, off, size), nil
}

// Deallocate drops the reference; the GC reclaims the memory.
func (HeapResource) Deallocate([]byte) {}

var (
	defaultOnce     sync.Once
	defaultResource api.Resource
)

// Default returns the process-wide fallback resource (the Go heap).
func Default() api.Resource {
	defaultOnce.Do(func() { defaultResource = HeapResource{} })
	return defaultResource
}

var _ api.Resource = HeapResource{}
