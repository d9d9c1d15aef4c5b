// Package node implements the coordination block shared by one producer and
// up to NumSlots consumers of a shared memory segment.
//
// A Node is a fixed-size, pointer-free value. It is placed at offset 0 of a
// segment and every attached process operates on it through its own mapping.
// All mutation of the slot table and of the cycle bookkeeping happens under
// the Node's inter-process mutex; fields that are read without the lock are
// accessed atomically.
package node

import (
	"errors"
	"math/bits"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/cpu"

	"gosuda.org/shmdf/internal/futex"
)

// NumSlots is the maximum number of sources attached to one Node.
const NumSlots = 10

// Version is the layout version written by Init and checked by Attach.
const Version = 1

// Magic number identifying an initialized Node.
const nodeMagic uint64 = 0x6e6f64656466736d

const (
	flagInit uint32 = 1 << iota
	flagRetired
)

var (
	ErrCapacityExceeded     = errors.New("shmdf: slot capacity exceeded")
	ErrInvalidSlot          = errors.New("shmdf: invalid slot index")
	ErrSynchronizationFault = errors.New("shmdf: synchronization fault")
	ErrAlreadyBound         = errors.New("shmdf: sink already bound")
	ErrNotBound             = errors.New("shmdf: no sink bound")
	ErrRetired              = errors.New("shmdf: node retired")
	ErrUninitialized        = errors.New("shmdf: node not initialized")
	ErrVersion              = errors.New("shmdf: node version mismatch")
	ErrPayloadMismatch      = errors.New("shmdf: payload layout mismatch")
)

// Node is the shared coordination block.
type Node struct {
	magic   uint64
	version uint32
	flags   uint32

	_ cpu.CacheLinePad

	cycle       uint64 // number of published values
	segmentSize uint64 // current size of the backing segment
	dataLen     uint64 // bytes of trailing data in the current value
	sinkID      uuid.UUID

	mu          futex.Mutex
	sinkState   uint32
	refCount    uint32
	occupied    uint32 // slot bitset
	pending     uint32 // slots signaled in the current cycle and not yet acknowledged
	outstanding uint32
	sinkPID     uint32
	payloadSize uint32

	_ cpu.CacheLinePad

	writeBarrier futex.Semaphore
	readBarriers [NumSlots]futex.Semaphore
}

// Size is the number of bytes a Node occupies in a segment.
const Size = unsafe.Sizeof(Node{})

// Init initializes a Node at p, which must point to zeroed memory of at least
// Size bytes. It returns false if the memory already holds a Node.
func Init(p unsafe.Pointer, payloadSize uint32, segmentSize uint64) (*Node, bool) {
	n := (*Node)(p)

	if !atomic.CompareAndSwapUint64(&n.magic, 0, nodeMagic) {
		return n, false
	}

	n.version = Version
	n.payloadSize = payloadSize
	atomic.StoreUint64(&n.segmentSize, segmentSize)
	atomic.StoreUint32(&n.flags, flagInit)

	return n, true
}

// Attach returns the Node at p once its creator has finished Init.
// It gives up after timeout; a zero timeout waits forever.
func Attach(p unsafe.Pointer, timeout time.Duration) (*Node, error) {
	start := time.Now()
	n := (*Node)(p)

	for {
		if atomic.LoadUint64(&n.magic) == nodeMagic && atomic.LoadUint32(&n.flags)&flagInit != 0 {
			if n.version != Version {
				return nil, ErrVersion
			}
			return n, nil
		}

		if timeout > 0 && time.Since(start) >= timeout {
			return nil, ErrUninitialized
		}

		runtime.Gosched()
	}
}

// PayloadSize is the size of the fixed-layout value recorded at Init.
func (n *Node) PayloadSize() uint32 {
	return n.payloadSize
}

// SourceRefCount is the number of occupied slots.
func (n *Node) SourceRefCount() int {
	return int(atomic.LoadUint32(&n.refCount))
}

// Cycle is the number of values published so far.
func (n *Node) Cycle() uint64 {
	return atomic.LoadUint64(&n.cycle)
}

// SegmentSize is the current size of the backing segment.
func (n *Node) SegmentSize() uint64 {
	return atomic.LoadUint64(&n.segmentSize)
}

// SetSegmentSize records a resized backing segment. Only the bound sink calls it.
func (n *Node) SetSegmentSize(size uint64) {
	atomic.StoreUint64(&n.segmentSize, size)
}

// DataLen is the length of the trailing data of the current value.
func (n *Node) DataLen() uint64 {
	return atomic.LoadUint64(&n.dataLen)
}

// SetDataLen records the trailing data length of the value about to be published.
func (n *Node) SetDataLen(l uint64) {
	atomic.StoreUint64(&n.dataLen, l)
}

// Retired reports whether the segment holding n has been scheduled for unlink.
func (n *Node) Retired() bool {
	return atomic.LoadUint32(&n.flags)&flagRetired != 0
}

// verify checks the slot table invariants. Called with n.mu held.
func (n *Node) verify() error {
	occupied := atomic.LoadUint32(&n.occupied)
	pending := atomic.LoadUint32(&n.pending)

	switch {
	case atomic.LoadUint32(&n.refCount) != uint32(bits.OnesCount32(occupied)):
	case occupied>>NumSlots != 0:
	case pending&^occupied != 0:
	case atomic.LoadUint32(&n.outstanding) != uint32(bits.OnesCount32(pending)):
	default:
		return nil
	}
	return n.fault()
}

// fault moves n into the terminal error state. Called with n.mu held.
func (n *Node) fault() error {
	atomic.StoreUint32(&n.sinkState, uint32(SinkStateError))
	return ErrSynchronizationFault
}
