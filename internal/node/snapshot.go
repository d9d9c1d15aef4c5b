package node

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Snapshot is a point-in-time copy of a Node's bookkeeping.
type Snapshot struct {
	Version        uint32    `json:"version"`
	SinkState      string    `json:"sink_state"`
	SinkID         uuid.UUID `json:"sink_id"`
	SinkPID        int       `json:"sink_pid"`
	SourceRefCount int       `json:"source_ref_count"`
	Slots          []int     `json:"slots"`
	Pending        []int     `json:"pending"`
	Outstanding    int       `json:"outstanding"`
	Cycle          uint64    `json:"cycle"`
	PayloadSize    uint32    `json:"payload_size"`
	DataLen        uint64    `json:"data_len"`
	SegmentSize    uint64    `json:"segment_size"`
	Retired        bool      `json:"retired"`
}

// Snapshot copies n's state under its lock.
func (n *Node) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()

	s := Snapshot{
		Version:        n.version,
		SinkState:      n.SinkState().String(),
		SinkID:         n.sinkID,
		SinkPID:        n.SinkPID(),
		SourceRefCount: n.SourceRefCount(),
		Slots:          []int{},
		Pending:        []int{},
		Outstanding:    n.Outstanding(),
		Cycle:          n.Cycle(),
		PayloadSize:    n.payloadSize,
		DataLen:        n.DataLen(),
		SegmentSize:    n.SegmentSize(),
		Retired:        n.Retired(),
	}

	occupied := atomic.LoadUint32(&n.occupied)
	pending := atomic.LoadUint32(&n.pending)
	for i := 0; i < NumSlots; i++ {
		if occupied&(1<<i) != 0 {
			s.Slots = append(s.Slots, i)
		}
		if pending&(1<<i) != 0 {
			s.Pending = append(s.Pending, i)
		}
	}
	return s
}
