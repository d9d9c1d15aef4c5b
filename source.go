package shmdf

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gosuda.org/shmdf/internal/node"
	"gosuda.org/shmdf/internal/shm"
)

// Source is a consumer handle occupying one slot of a segment.
//
// GetValue and its variants must not be called concurrently. NotifySelf may
// be called from any goroutine.
type Source[T any] struct {
	name string
	opts options
	slot int
	log  *slog.Logger
	seg  *attachment

	value  T
	sample uint64

	shutdown atomic.Bool
	closed   atomic.Bool
	mu       sync.Mutex
}

// Connect attaches a new Source to the segment name. The segment must exist
// and have a bound sink, otherwise Connect fails with ErrNotFound. At most
// NumSlots sources may be connected at once; beyond that Connect fails with
// ErrCapacityExceeded.
func Connect[T any](name string, opts ...Option) (*Source[T], error) {
	o := newOptions(opts)

	l, err := layoutOf[T]()
	if err != nil {
		return nil, wrap("connect", name, err)
	}

	mem, err := shm.Attach(o.dir, name)
	if err != nil {
		return nil, wrap("connect", name, err)
	}

	n, err := attachNode(mem, o)
	if err != nil {
		mem.Close()
		return nil, wrap("connect", name, err)
	}

	// n is unusable once mem is closed.
	if size := n.PayloadSize(); size != uint32(l.headerSize) {
		mem.Close()
		return nil, wrap("connect", name,
			fmt.Errorf("%w: segment holds %d byte values, have %d", ErrPayloadMismatch, size, l.headerSize))
	}

	slot, err := n.AcquireBoundSlot()
	if err != nil {
		mem.Close()
		return nil, wrap("connect", name, err)
	}

	s := &Source[T]{
		name: name,
		opts: o,
		slot: slot,
		log:  o.logger.With("segment", name, "role", "source", "slot", slot),
		seg:  newAttachment(mem, n, l),
	}

	s.log.Debug("source connected", "sources", n.SourceRefCount(), "sink", n.SinkID())
	return s, nil
}

// Name returns the segment name.
func (s *Source[T]) Name() string {
	return s.name
}

// Slot returns the slot index this source occupies.
func (s *Source[T]) Slot() int {
	return s.slot
}

// Value returns the last value read, without blocking.
func (s *Source[T]) Value() T {
	return s.value
}

// SampleNumber is the write cycle of the last value read. It increases by
// one per SetValue; a gap means this source missed samples while it was
// not waiting.
func (s *Source[T]) SampleNumber() uint64 {
	return s.sample
}

// GetValue blocks until the sink publishes a value and returns it.
func (s *Source[T]) GetValue() (T, error) {
	v, _, err := s.get(nil, false, 0)
	return v, err
}

// GetValueTimeout is GetValue bounded by d. It fails with ErrTimeout if
// nothing was published in time.
func (s *Source[T]) GetValueTimeout(d time.Duration) (T, error) {
	v, _, err := s.get(nil, false, d)
	return v, err
}

// GetValueData is GetValue that also copies the data trailer, appending it
// to dst[:0].
func (s *Source[T]) GetValueData(dst []byte) (T, []byte, error) {
	return s.get(dst, true, 0)
}

// GetValueDataTimeout is GetValueData bounded by d.
func (s *Source[T]) GetValueDataTimeout(dst []byte, d time.Duration) (T, []byte, error) {
	return s.get(dst, true, d)
}

func (s *Source[T]) get(dst []byte, withData bool, timeout time.Duration) (T, []byte, error) {
	var zero T
	if s.closed.Load() {
		return zero, dst, ErrClosed
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	barrier, err := s.seg.node.Load().ReadBarrier(s.slot)
	if err != nil {
		return zero, dst, wrap("get value", s.name, err)
	}

	for {
		if s.shutdown.Load() {
			return zero, dst, ErrShutdown
		}

		if deadline.IsZero() {
			err = barrier.Wait()
		} else if remaining := time.Until(deadline); remaining > 0 {
			err = barrier.WaitTimeout(remaining)
		} else {
			err = ErrTimeout
		}
		if err != nil {
			return zero, dst, wrap("get value", s.name, err)
		}

		if s.shutdown.Load() {
			return zero, dst, ErrShutdown
		}

		n := s.seg.node.Load()
		switch {
		case n.SinkState() == node.SinkStateError:
			return zero, dst, s.fail(ErrSynchronizationFault)
		case n.Signaled(s.slot):
			return s.read(dst, withData)
		case n.SinkState() != node.SinkStateBound:
			return zero, dst, ErrSinkClosed
		}
		// A leftover post from an earlier sink; wait for the next cycle.
	}
}

// read copies the published value and acknowledges it.
func (s *Source[T]) read(dst []byte, withData bool) (T, []byte, error) {
	var zero T

	if err := s.seg.refresh(); err != nil {
		return zero, dst, wrap("get value", s.name, err)
	}

	n := s.seg.node.Load()
	dataLen := n.DataLen()
	if dataLen > uint64(s.seg.dataCapacity()) {
		n.Fault()
		return zero, dst, s.fail(fmt.Errorf("%w: %d byte trailer in %d byte segment",
			ErrSynchronizationFault, dataLen, s.seg.mem.Size()))
	}

	v := *(*T)(s.seg.header())
	if withData {
		dst = append(dst[:0], s.seg.data()[:dataLen]...)
	}
	cycle := n.Cycle()

	if err := n.Acknowledge(s.slot); err != nil {
		return zero, dst, s.fail(err)
	}

	s.value = v
	s.sample = cycle
	return v, dst, nil
}

func (s *Source[T]) fail(err error) error {
	if errors.Is(err, ErrSynchronizationFault) {
		s.log.Error("synchronization fault", "error", err, "snapshot", s.seg.node.Load().Snapshot())
	}
	return wrap("get value", s.name, err)
}

// NotifySelf wakes the goroutine blocked in GetValue, which returns
// ErrShutdown. Every later GetValue also returns ErrShutdown.
func (s *Source[T]) NotifySelf() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return
	}
	s.shutdown.Store(true)

	barrier, err := s.seg.node.Load().ReadBarrier(s.slot)
	if err == nil {
		err = barrier.Post()
	}
	if err != nil {
		s.log.Warn("notify self failed", "error", err)
	}
}

// Close releases the slot. A value signaled but not yet read counts as
// read. The last source to leave a segment without a sink unlinks it.
//
// Close must not run concurrently with GetValue; use NotifySelf first.
func (s *Source[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}

	n := s.seg.node.Load()

	var (
		last bool
		err  error
	)
	if s.opts.unlink {
		last, err = n.Detach(s.slot)
	} else {
		err = n.ReleaseSlot(s.slot)
	}
	errs := []error{err, s.seg.mem.Close()}

	if last {
		if err := shm.Destroy(s.opts.dir, s.name); err != nil && !errors.Is(err, shm.ErrNotFound) {
			errs = append(errs, err)
		}
	}

	s.log.Debug("source closed", "unlinked", last)
	return errors.Join(errs...)
}
