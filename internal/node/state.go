package node

import (
	"os"
	"sync/atomic"

	"github.com/google/uuid"
)

// SinkState is the producer-side lifecycle of a Node.
//
//	UNDEFINED -> BOUND    on Bind
//	BOUND     -> UNDEFINED on Unbind, the Node may be bound again
//	BOUND     -> ERROR    when an invariant check fails; terminal
type SinkState uint32

//go:generate go tool stringer -type=SinkState -linecomment

const (
	SinkStateUndefined SinkState = iota // UNDEFINED
	SinkStateBound                      // BOUND
	SinkStateError                      // ERROR
)

// SinkState returns the current sink state.
func (n *Node) SinkState() SinkState {
	return SinkState(atomic.LoadUint32(&n.sinkState))
}

// SinkID is the identity of the bound sink, or uuid.Nil.
func (n *Node) SinkID() uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sinkID
}

// SinkPID is the process ID of the bound sink, or 0.
func (n *Node) SinkPID() int {
	return int(atomic.LoadUint32(&n.sinkPID))
}

// Bind attaches the sink identified by id to n. The payload size must match
// the one the Node was initialized with.
func (n *Node) Bind(id uuid.UUID, payloadSize uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Retired() {
		return ErrRetired
	}
	if err := n.failFast(); err != nil {
		return err
	}
	if n.SinkState() == SinkStateBound {
		return ErrAlreadyBound
	}
	if payloadSize != n.payloadSize {
		return ErrPayloadMismatch
	}

	// Acknowledgements still owed to a previous sink are void.
	atomic.StoreUint32(&n.pending, 0)
	atomic.StoreUint32(&n.outstanding, 0)
	n.writeBarrier.Reset()

	n.sinkID = id
	atomic.StoreUint32(&n.sinkPID, uint32(os.Getpid()))
	atomic.StoreUint32(&n.sinkState, uint32(SinkStateBound))
	return nil
}

// Unbind detaches the sink identified by id and wakes every waiting source.
// It is a no-op for any other id. With retire set and no source attached,
// the Node is retired and Unbind returns true: the caller should unlink the
// segment.
func (n *Node) Unbind(id uuid.UUID, retire bool) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sinkID != id {
		return false, nil
	}

	state := n.SinkState()
	switch state {
	case SinkStateBound:
		atomic.StoreUint32(&n.sinkState, uint32(SinkStateUndefined))
	case SinkStateError:
		// Terminal: the segment can only be recreated, so sources are
		// left to fail and the name is freed regardless of who is attached.
	default:
		return false, nil
	}

	n.sinkID = uuid.Nil
	atomic.StoreUint32(&n.sinkPID, 0)

	occupied := atomic.LoadUint32(&n.occupied)
	for i := 0; i < NumSlots; i++ {
		if occupied&(1<<i) != 0 {
			if err := n.readBarriers[i].Post(); err != nil {
				return false, err
			}
		}
	}

	if retire && (state == SinkStateError || atomic.LoadUint32(&n.refCount) == 0) {
		atomic.StoreUint32(&n.flags, atomic.LoadUint32(&n.flags)|flagRetired)
		return true, nil
	}
	return false, nil
}

// Fault forces n into the error state.
func (n *Node) Fault() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fault()
}
