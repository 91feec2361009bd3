// File: memory/allocator.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Typed allocation on top of a byte resource.

package memory

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/momentics/hioload-jobs/api"
)

// CoreAllocator allocates slices of T from a resource. T must be free of
// Go pointers: resource memory may live outside the garbage-collected heap.
type CoreAllocator[T any] struct {
	res api.Resource
}

// NewCoreAllocator binds an allocator to res (Default() if nil). It panics
// if T contains pointers, strings, slices, maps, channels, funcs or interfaces.
func NewCoreAllocator[T any](res api.Resource) CoreAllocator[T] {
	var zero T
	typ := reflect.TypeOf(&zero).Elem()
	assertf(pointerFree(typ), "core allocator: element type %s holds pointers", typ)
	if res == nil {
		res = Default()
	}
	return CoreAllocator[T]{res: res}
}

// NewCoreAllocatorFrom rebinds an allocator to another element type while
// sharing its resource.
func NewCoreAllocatorFrom[T, U any](other CoreAllocator[U]) CoreAllocator[T] {
	return NewCoreAllocator[T](other.res)
}

func pointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return t.Len() == 0 || pointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !pointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	}
	return false
}

// Resource returns the underlying resource.
func (a CoreAllocator[T]) Resource() api.Resource { return a.res }

// Allocate returns a zeroed slice of n elements.
func (a CoreAllocator[T]) Allocate(n int) ([]T, error) {
	if n < 0 {
		return nil, fmt.Errorf("memory: element count %d: %w", n, api.ErrInvalidArgument)
	}
	var zero T
	elem := int(unsafe.Sizeof(zero))
	if n == 0 || elem == 0 {
		return make([]T, n), nil
	}
	if n > MaxAllocation()/elem {
		return nil, fmt.Errorf("memory: %d elements of %d bytes: %w", n, elem, api.ErrInvalidArgument)
	}
	b, err := a.res.Allocate(n*elem, int(unsafe.Alignof(zero)))
	if err != nil {
		return nil, err
	}
	clear(b)
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n), nil
}

// Deallocate returns a slice obtained from Allocate.
func (a CoreAllocator[T]) Deallocate(s []T) {
	var zero T
	elem := int(unsafe.Sizeof(zero))
	if cap(s) == 0 || elem == 0 {
		return
	}
	a.res.Deallocate(unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), cap(s)*elem))
}
