package node

import (
	"math/bits"
	"sync/atomic"
)

// Publish starts a write cycle: every occupied slot becomes pending and its
// read barrier is posted exactly once. It returns the number of sources the
// sink must wait for on the write barrier; zero means the cycle is already
// complete.
//
// The caller must have finished writing the value before calling Publish.
func (n *Node) Publish() (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.failFast(); err != nil {
		return 0, err
	}
	if n.SinkState() != SinkStateBound {
		return 0, ErrNotBound
	}
	if atomic.LoadUint32(&n.outstanding) != 0 {
		// The previous cycle never drained.
		return 0, n.fault()
	}

	occupied := atomic.LoadUint32(&n.occupied)
	count := bits.OnesCount32(occupied)

	n.writeBarrier.Reset()
	atomic.AddUint64(&n.cycle, 1)
	atomic.StoreUint32(&n.pending, occupied)
	atomic.StoreUint32(&n.outstanding, uint32(count))

	for i := 0; i < NumSlots; i++ {
		if occupied&(1<<i) == 0 {
			continue
		}
		if err := n.readBarriers[i].Post(); err != nil {
			return 0, err
		}
	}

	return count, nil
}

// Signaled reports whether slot i has a value waiting to be acknowledged.
func (n *Node) Signaled(i int) bool {
	if i < 0 || i >= NumSlots {
		return false
	}
	return atomic.LoadUint32(&n.pending)&(1<<i) != 0
}

// Outstanding is the number of sources that still owe an acknowledgement
// for the current cycle.
func (n *Node) Outstanding() int {
	return int(atomic.LoadUint32(&n.outstanding))
}

// Acknowledge records that the source in slot i has finished reading the
// current value. The last acknowledgement of a cycle posts the write
// barrier. Acknowledging a slot that is not pending is a no-op.
func (n *Node) Acknowledge(i int) error {
	if i < 0 || i >= NumSlots {
		return ErrInvalidSlot
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.SinkState() == SinkStateError {
		return ErrSynchronizationFault
	}

	bit := uint32(1) << i
	if atomic.LoadUint32(&n.pending)&bit == 0 {
		return nil
	}
	if err := n.acknowledge(bit); err != nil {
		return err
	}
	return n.verify()
}

// acknowledge clears bit from the pending set. Called with n.mu held.
func (n *Node) acknowledge(bit uint32) error {
	outstanding := atomic.LoadUint32(&n.outstanding)
	if outstanding == 0 {
		return n.fault()
	}

	atomic.StoreUint32(&n.pending, atomic.LoadUint32(&n.pending)&^bit)
	atomic.StoreUint32(&n.outstanding, outstanding-1)

	if outstanding == 1 {
		return n.writeBarrier.Post()
	}
	return nil
}
