// File: core/concurrency/atomic_flag.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// AtomicFlag is a test-and-set spinlock for very short critical sections
// such as free-list pushes in the thread-safe memory pools.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"
)

var _ sync.Locker = (*AtomicFlag)(nil)

// spinsBeforeYield bounds busy spinning before handing the P back.
const spinsBeforeYield = 64

// AtomicFlag is a boolean flag with test-and-set semantics. The zero value is clear.
type AtomicFlag struct {
	v atomic.Bool
}

// TestAndSet sets the flag and reports its previous value.
func (f *AtomicFlag) TestAndSet() bool {
	return f.v.Swap(true)
}

// Clear resets the flag.
func (f *AtomicFlag) Clear() {
	f.v.Store(false)
}

// IsSet reports the current value.
func (f *AtomicFlag) IsSet() bool {
	return f.v.Load()
}

// TryLock acquires the flag without spinning.
func (f *AtomicFlag) TryLock() bool {
	return !f.v.Load() && f.v.CompareAndSwap(false, true)
}

// Lock spins until the flag is acquired, yielding the processor after a
// short burst of failed attempts.
func (f *AtomicFlag) Lock() {
	for spins := 0; ; spins++ {
		if f.TryLock() {
			return
		}
		if spins >= spinsBeforeYield {
			runtime.Gosched()
			spins = 0
		}
	}
}

// Unlock clears the flag.
func (f *AtomicFlag) Unlock() {
	f.v.Store(false)
}
