//go:build linux

package futex

import (
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// The futex words live in MAP_SHARED mappings that other processes also
// wait on, so the private variants (FUTEX_*_PRIVATE) must not be used here.
const (
	_FUTEX_WAIT = 0
	_FUTEX_WAKE = 1
)

// wait blocks while *addr == val. A zero timeout waits forever.
//
// Returns nil on wake, on a value mismatch and on EINTR: callers always
// re-check their condition after wait returns.
func wait(addr *uint32, val uint32, timeout time.Duration) error {
	if atomic.LoadUint32(addr) != val {
		return nil
	}

	var ts *unix.Timespec
	if timeout > 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	// Syscall6 rather than RawSyscall6: the wait may last indefinitely and the
	// runtime has to be able to hand this P to another goroutine.
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		_FUTEX_WAIT,
		uintptr(val),
		uintptr(unsafe.Pointer(ts)),
		0,
		0,
	)

	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	case unix.ETIMEDOUT:
		return ErrTimeout
	}
	return fmt.Errorf("futex wait failed: %w", errno)
}

// wake wakes up to n waiters blocked on addr and reports how many were woken.
func wake(addr *uint32, n int) (int, error) {
	r1, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		_FUTEX_WAKE,
		uintptr(n),
		0,
		0,
		0,
	)
	if errno != 0 {
		return 0, fmt.Errorf("futex wake failed: %w", errno)
	}
	return int(r1), nil
}
