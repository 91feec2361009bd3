// File: core/concurrency/mutex.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "sync"

// Mutex is the exclusive lock used by jobs and resources.
type Mutex = sync.Mutex

// SharedMutex is a reader/writer lock.
type SharedMutex = sync.RWMutex

// Locked runs fn while holding l.
func Locked(l sync.Locker, fn func()) {
	l.Lock()
	defer l.Unlock()
	fn()
}
