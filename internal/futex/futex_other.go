//go:build !linux

package futex

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Without futexes waiters poll. The semantics are unchanged, only the
// latency and CPU cost differ.

func wait(addr *uint32, val uint32, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for atomic.LoadUint32(addr) == val {
		if timeout > 0 && time.Now().After(deadline) {
			return ErrTimeout
		}
		runtime.Gosched()
	}
	return nil
}

func wake(addr *uint32, n int) (int, error) {
	return 0, nil
}
