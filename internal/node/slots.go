package node

import (
	"sync/atomic"

	"gosuda.org/shmdf/internal/futex"
)

// AcquireSlot reserves the lowest free slot and returns its index. The slot's
// read barrier starts empty.
func (n *Node) AcquireSlot() (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.acquire(false)
}

// AcquireBoundSlot is AcquireSlot that fails with ErrNotBound unless a sink
// is bound, checked atomically with the reservation.
func (n *Node) AcquireBoundSlot() (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.acquire(true)
}

func (n *Node) acquire(requireBound bool) (int, error) {
	if err := n.failFast(); err != nil {
		return -1, err
	}
	if requireBound && n.SinkState() != SinkStateBound {
		return -1, ErrNotBound
	}

	occupied := atomic.LoadUint32(&n.occupied)
	for i := 0; i < NumSlots; i++ {
		bit := uint32(1) << i
		if occupied&bit != 0 {
			continue
		}

		n.readBarriers[i].Reset()
		atomic.StoreUint32(&n.occupied, occupied|bit)
		atomic.AddUint32(&n.refCount, 1)
		return i, nil
	}

	return -1, ErrCapacityExceeded
}

// ReleaseSlot frees slot i. Releasing a free slot is a no-op. A slot that
// was signaled in the current cycle counts as acknowledged.
func (n *Node) ReleaseSlot(i int) error {
	if i < 0 || i >= NumSlots {
		return ErrInvalidSlot
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	_, err := n.release(i)
	return err
}

// Detach is ReleaseSlot for a departing source. It reports whether the
// caller was the last party attached to a Node whose sink has gone, in which
// case the Node is retired and the caller should unlink the segment.
func (n *Node) Detach(i int) (bool, error) {
	if i < 0 || i >= NumSlots {
		return false, ErrInvalidSlot
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	released, err := n.release(i)
	if err != nil || !released {
		return false, err
	}

	if atomic.LoadUint32(&n.refCount) == 0 && n.SinkState() == SinkStateUndefined && !n.Retired() {
		atomic.StoreUint32(&n.flags, atomic.LoadUint32(&n.flags)|flagRetired)
		return true, nil
	}
	return false, nil
}

func (n *Node) release(i int) (bool, error) {
	if err := n.failFast(); err != nil {
		return false, err
	}

	bit := uint32(1) << i
	occupied := atomic.LoadUint32(&n.occupied)
	if occupied&bit == 0 {
		return false, nil
	}

	if atomic.LoadUint32(&n.refCount) == 0 {
		return false, n.fault()
	}

	atomic.StoreUint32(&n.occupied, occupied&^bit)
	atomic.AddUint32(&n.refCount, ^uint32(0))
	n.readBarriers[i].Reset()

	if atomic.LoadUint32(&n.pending)&bit != 0 {
		if err := n.acknowledge(bit); err != nil {
			return false, err
		}
	}

	return true, n.verify()
}

// ReadBarrier returns the read barrier of slot i, whether or not the slot is
// occupied.
func (n *Node) ReadBarrier(i int) (*futex.Semaphore, error) {
	if i < 0 || i >= NumSlots {
		return nil, ErrInvalidSlot
	}
	return &n.readBarriers[i], nil
}

// WriteBarrier returns the semaphore the sink waits on for a cycle to drain.
func (n *Node) WriteBarrier() *futex.Semaphore {
	return &n.writeBarrier
}

// Occupied reports whether slot i is held by a source.
func (n *Node) Occupied(i int) bool {
	if i < 0 || i >= NumSlots {
		return false
	}
	return atomic.LoadUint32(&n.occupied)&(1<<i) != 0
}

// failFast refuses any operation once n is in the error state. Called with
// n.mu held.
func (n *Node) failFast() error {
	if n.SinkState() == SinkStateError {
		return ErrSynchronizationFault
	}
	return n.verify()
}
