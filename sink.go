package shmdf

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gosuda.org/shmdf/internal/node"
	"gosuda.org/shmdf/internal/shm"
)

// maxBindAttempts bounds retries when the segment is unlinked while binding.
const maxBindAttempts = 8

// Sink is the producer handle of a segment. There is at most one bound Sink
// per segment.
//
// SetValue and SetValueData must not be called concurrently. NotifySelf may
// be called from any goroutine.
type Sink[T any] struct {
	name string
	opts options
	id   uuid.UUID
	log  *slog.Logger
	seg  *attachment

	shutdown atomic.Bool
	closed   atomic.Bool
	mu       sync.Mutex // serializes Close against NotifySelf
}

// Bind creates segment name, or attaches to it if it exists, and binds a
// new Sink to it. It fails with ErrAlreadyExists if another sink is bound and
// with ErrPayloadMismatch if the segment was created for a different T.
func Bind[T any](name string, opts ...Option) (*Sink[T], error) {
	o := newOptions(opts)

	l, err := layoutOf[T]()
	if err != nil {
		return nil, wrap("bind", name, err)
	}

	s := &Sink[T]{
		name: name,
		opts: o,
		id:   uuid.New(),
		log:  o.logger.With("segment", name, "role", "sink"),
	}

	for attempt := 0; attempt < maxBindAttempts; attempt++ {
		seg, created, err := s.bind(l)
		if errors.Is(err, node.ErrRetired) || errors.Is(err, shm.ErrNotFound) {
			// Unlinked between our open and our bind; start over.
			s.log.Debug("segment retired while binding, retrying", "attempt", attempt)
			time.Sleep(time.Duration(attempt+1) * time.Millisecond)
			continue
		}
		if err != nil {
			return nil, wrap("bind", name, err)
		}

		s.seg = seg
		s.log.Debug("sink bound",
			"id", s.id,
			"created", created,
			"size", seg.mem.Size(),
			"sources", seg.node.Load().SourceRefCount(),
		)
		return s, nil
	}

	return nil, fmt.Errorf("bind %s: segment unlinked %d times while binding", name, maxBindAttempts)
}

func (s *Sink[T]) bind(l layout) (*attachment, bool, error) {
	size := l.segmentSize(s.opts.dataCapacity)

	mem, err := shm.Create(s.opts.dir, s.name, size)
	created := err == nil

	var n *node.Node
	switch {
	case created:
		n, _ = node.Init(mem.Pointer(), uint32(l.headerSize), uint64(size))
	case errors.Is(err, shm.ErrAlreadyExists):
		if mem, err = shm.Attach(s.opts.dir, s.name); err != nil {
			return nil, false, err
		}
		if n, err = attachNode(mem, s.opts); err != nil {
			mem.Close()
			return nil, false, err
		}
		s.drain(n)
	default:
		return nil, false, err
	}

	if err := n.Bind(s.id, uint32(l.headerSize)); err != nil {
		mem.Close()
		return nil, false, err
	}
	return newAttachment(mem, n, l), created, nil
}

// drain waits, up to the attach timeout, for sources still reading the last
// value of a previous sink. Bind voids whatever is left after that.
func (s *Sink[T]) drain(n *node.Node) {
	if n.SinkState() != node.SinkStateUndefined || n.Outstanding() == 0 {
		return
	}

	deadline := time.Now().Add(s.opts.attachTimeout)
	for n.Outstanding() != 0 && n.SinkState() == node.SinkStateUndefined {
		if s.opts.attachTimeout > 0 && time.Now().After(deadline) {
			s.log.Warn("previous value not drained, discarding", "outstanding", n.Outstanding())
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// Name returns the segment name.
func (s *Sink[T]) Name() string {
	return s.name
}

// ID returns the identity this sink bound with.
func (s *Sink[T]) ID() uuid.UUID {
	return s.id
}

// SourceRefCount returns the number of attached sources, or 0 once the sink
// is closed.
func (s *Sink[T]) SourceRefCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return 0
	}
	return s.seg.node.Load().SourceRefCount()
}

// SetValue publishes v and blocks until every source attached at publish
// time has read it.
func (s *Sink[T]) SetValue(v T) error {
	return s.SetValueData(v, nil)
}

// SetValueData is SetValue with a variable-length data trailer. The segment
// grows if data does not fit.
func (s *Sink[T]) SetValueData(v T, data []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.shutdown.Load() {
		return ErrShutdown
	}

	// Sources may still be reading until the previous cycle has drained.
	n := s.seg.node.Load()
	switch {
	case n.SinkState() == node.SinkStateError:
		return s.fail(ErrSynchronizationFault)
	case n.SinkState() != node.SinkStateBound:
		return wrap("set value", s.name, node.ErrNotBound)
	case n.Outstanding() != 0:
		n.Fault()
		return s.fail(fmt.Errorf("%w: %d sources still reading the previous value", ErrSynchronizationFault, n.Outstanding()))
	}

	if len(data) > s.seg.dataCapacity() {
		if err := s.grow(len(data)); err != nil {
			return wrap("set value", s.name, err)
		}
		n = s.seg.node.Load()
	}

	*(*T)(s.seg.header()) = v
	copy(s.seg.data(), data)
	n.SetDataLen(uint64(len(data)))

	count, err := n.Publish()
	if err != nil {
		return s.fail(err)
	}
	if count == 0 {
		return nil
	}

	for {
		if err := n.WriteBarrier().Wait(); err != nil {
			return wrap("set value", s.name, err)
		}
		if s.shutdown.Load() {
			return ErrShutdown
		}
		if n.SinkState() == node.SinkStateError {
			return s.fail(ErrSynchronizationFault)
		}
		if n.Outstanding() == 0 {
			return nil
		}
	}
}

// grow resizes the segment so the trailer holds at least need bytes.
func (s *Sink[T]) grow(need int) error {
	want := max(need, 2*s.seg.dataCapacity())
	size := s.seg.layout.segmentSize(want)

	if err := s.seg.mem.Resize(size); err != nil {
		return err
	}

	n := (*node.Node)(s.seg.mem.Pointer())
	s.seg.node.Store(n)
	n.SetSegmentSize(uint64(size))

	s.log.Debug("segment resized", "size", size, "data_capacity", s.seg.dataCapacity())
	return nil
}

func (s *Sink[T]) fail(err error) error {
	if errors.Is(err, ErrSynchronizationFault) {
		s.log.Error("synchronization fault", "error", err, "snapshot", s.seg.node.Load().Snapshot())
	}
	return wrap("set value", s.name, err)
}

// NotifySelf wakes the goroutine blocked in SetValue, which returns
// ErrShutdown. Every later SetValue also returns ErrShutdown.
func (s *Sink[T]) NotifySelf() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return
	}
	s.shutdown.Store(true)
	if err := s.seg.node.Load().WriteBarrier().Post(); err != nil {
		s.log.Warn("notify self failed", "error", err)
	}
}

// Close unbinds the sink and wakes every waiting source, which then returns
// ErrSinkClosed. If no source is attached the segment is unlinked; otherwise
// the last source to leave unlinks it.
//
// Close must not run concurrently with SetValue; use NotifySelf first.
func (s *Sink[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}

	retired, err := s.seg.node.Load().Unbind(s.id, s.opts.unlink)
	errs := []error{err, s.seg.mem.Close()}

	if retired {
		if err := shm.Destroy(s.opts.dir, s.name); err != nil && !errors.Is(err, shm.ErrNotFound) {
			errs = append(errs, err)
		}
	}

	s.log.Debug("sink closed", "unlinked", retired)
	return errors.Join(errs...)
}
