// File: core/concurrency/synchronizer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ThreadSynchronizer pairs a mutex with a condition variable that supports
// timed waits. Notifications are delivered by closing a generation channel,
// so NotifyAll may be called with or without the mutex held.

package concurrency

import (
	"sync"
	"time"
)

// ThreadSynchronizer is a mutex + condition variable pair. The zero value is
// ready to use.
type ThreadSynchronizer struct {
	mu sync.Mutex

	sigMu sync.Mutex    // guards gen and one
	gen   chan struct{} // closed and replaced by NotifyAll
	one   chan struct{} // single-slot wake for NotifyOne
}

// NewThreadSynchronizer returns an initialized synchronizer.
func NewThreadSynchronizer() *ThreadSynchronizer {
	s := &ThreadSynchronizer{}
	s.channels()
	return s
}

// Lock acquires the associated mutex.
func (s *ThreadSynchronizer) Lock() { s.mu.Lock() }

// Unlock releases the associated mutex.
func (s *ThreadSynchronizer) Unlock() { s.mu.Unlock() }

// TryLock attempts to acquire the mutex without blocking.
func (s *ThreadSynchronizer) TryLock() bool { return s.mu.TryLock() }

func (s *ThreadSynchronizer) channels() (gen, one chan struct{}) {
	s.sigMu.Lock()
	if s.gen == nil {
		s.gen = make(chan struct{})
		s.one = make(chan struct{}, 1)
	}
	gen, one = s.gen, s.one
	s.sigMu.Unlock()
	return gen, one
}

// Wait atomically releases the mutex and suspends the caller until a
// notification arrives or timeout elapses; timeout <= 0 waits without limit.
// The mutex is held again when Wait returns. The result reports whether a
// notification was received. Wakeups may be spurious: callers re-check
// their predicate in a loop.
func (s *ThreadSynchronizer) Wait(timeout time.Duration) bool {
	gen, one := s.channels()
	s.mu.Unlock()
	defer s.mu.Lock()

	if timeout <= 0 {
		select {
		case <-gen:
		case <-one:
		}
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-gen:
		return true
	case <-one:
		return true
	case <-timer.C:
		return false
	}
}

// NotifyOne wakes at most one waiter.
func (s *ThreadSynchronizer) NotifyOne() {
	_, one := s.channels()
	select {
	case one <- struct{}{}:
	default:
	}
}

// NotifyAll wakes every goroutine currently blocked in Wait.
func (s *ThreadSynchronizer) NotifyAll() {
	s.sigMu.Lock()
	if s.gen != nil {
		close(s.gen)
	}
	s.gen = make(chan struct{})
	if s.one == nil {
		s.one = make(chan struct{}, 1)
	}
	s.sigMu.Unlock()
}
