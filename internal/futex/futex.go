// Package futex implements blocking synchronization primitives whose entire
// state is a single 32-bit word, so they can be placed inside a shared memory
// segment and used by every process that maps it.
//
// Neither type holds pointers or process-local state. The zero value of each
// is ready to use: an unlocked Mutex and a Semaphore with count zero.
package futex

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrTimeout is returned by the bounded waits when the deadline passes.
var ErrTimeout = errors.New("shmdf: wait timed out")

// Semaphore is a counting semaphore.
type Semaphore struct {
	count uint32
}

// Post increments the count and wakes one waiter.
func (s *Semaphore) Post() error {
	atomic.AddUint32(&s.count, 1)
	_, err := wake(&s.count, 1)
	return err
}

// TryWait decrements the count if it is positive.
func (s *Semaphore) TryWait() bool {
	for {
		c := atomic.LoadUint32(&s.count)
		if c == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(&s.count, c, c-1) {
			return true
		}
	}
}

// Wait blocks until the count is positive, then decrements it.
func (s *Semaphore) Wait() error {
	return s.WaitTimeout(0)
}

// WaitTimeout is Wait bounded by d. A non-positive d waits forever.
func (s *Semaphore) WaitTimeout(d time.Duration) error {
	var deadline time.Time
	if d > 0 {
		deadline = time.Now().Add(d)
	}
	for {
		if s.TryWait() {
			return nil
		}

		var remaining time.Duration
		if d > 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return ErrTimeout
			}
		}

		err := wait(&s.count, 0, remaining)
		if err != nil && !errors.Is(err, ErrTimeout) {
			return err
		}
	}
}

// Reset drops any pending posts. Only safe while nobody waits on s.
func (s *Semaphore) Reset() {
	atomic.StoreUint32(&s.count, 0)
}

// Value returns the current count.
func (s *Semaphore) Value() uint32 {
	return atomic.LoadUint32(&s.count)
}

// Mutex is a mutual exclusion lock.
//
// A process that dies while holding the lock leaves it held; there is no
// owner tracking.
type Mutex struct {
	// 0: unlocked, 1: locked, 2: locked with possible waiters
	state uint32
}

// Lock acquires m, blocking until it is available.
func (m *Mutex) Lock() {
	if atomic.CompareAndSwapUint32(&m.state, 0, 1) {
		return
	}
	for atomic.SwapUint32(&m.state, 2) != 0 {
		_ = wait(&m.state, 2, 0)
	}
}

// TryLock acquires m if it is free.
func (m *Mutex) TryLock() bool {
	return atomic.CompareAndSwapUint32(&m.state, 0, 1)
}

// Unlock releases m.
func (m *Mutex) Unlock() {
	if atomic.SwapUint32(&m.state, 0) == 2 {
		_, _ = wake(&m.state, 1)
	}
}
