package shmdf

import (
	"fmt"
	"math"
	"reflect"
	"sync/atomic"
	"unsafe"

	"gosuda.org/shmdf/internal/node"
	"gosuda.org/shmdf/internal/shm"
)

// payloadAlign is the alignment of the value and of its data trailer.
const payloadAlign = 64

// Segment Memory Layout:
//
// <<<< offset 0
// NODE                 // coordination block, never moves
// <<<< payloadAlign
// VALUE (T)            // fixed-layout header of the current sample
// <<<< payloadAlign
// DATA                 // variable-length trailer, grows with the segment
// <<<< PAGE_END
type layout struct {
	headerOff  uintptr
	headerSize uintptr
	dataOff    uintptr
}

func layoutOf[T any]() (layout, error) {
	if err := checkFixedLayout(reflect.TypeFor[T]()); err != nil {
		return layout{}, err
	}

	var zero T
	size := unsafe.Sizeof(zero)
	if size > math.MaxUint32 {
		return layout{}, fmt.Errorf("%w: %d byte value", ErrInvalidPayload, size)
	}

	headerOff := alignUp(node.Size, payloadAlign)
	return layout{
		headerOff:  headerOff,
		headerSize: size,
		dataOff:    alignUp(headerOff+size, payloadAlign),
	}, nil
}

// segmentSize is the segment size holding a trailer of dataCap bytes.
func (l layout) segmentSize(dataCap int) int {
	return int(shm.PageAlign(l.dataOff + uintptr(dataCap)))
}

// dataCapacity is the trailer capacity of a segment of size bytes.
func (l layout) dataCapacity(size int) int {
	return size - int(l.dataOff)
}

func alignUp(v, a uintptr) uintptr {
	return (v + a - 1) &^ (a - 1)
}

// checkFixedLayout rejects types whose values reference process-local memory.
func checkFixedLayout(t reflect.Type) error {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return nil
	case reflect.Array:
		return checkFixedLayout(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if err := checkFixedLayout(f.Type); err != nil {
				return fmt.Errorf("%s.%s: %w", t, f.Name, err)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %s is a %s", ErrInvalidPayload, t, t.Kind())
}

// attachment is one handle's view of a segment.
type attachment struct {
	mem    *shm.SharedMemory
	node   atomic.Pointer[node.Node]
	layout layout
}

func newAttachment(mem *shm.SharedMemory, n *node.Node, l layout) *attachment {
	a := &attachment{mem: mem, layout: l}
	a.node.Store(n)
	return a
}

func (a *attachment) header() unsafe.Pointer {
	return unsafe.Add(a.mem.Pointer(), a.layout.headerOff)
}

func (a *attachment) data() []byte {
	return a.mem.Data()[a.layout.dataOff:]
}

func (a *attachment) dataCapacity() int {
	return a.layout.dataCapacity(a.mem.Size())
}

// refresh remaps the view if the sink has grown the segment.
func (a *attachment) refresh() error {
	if int(a.node.Load().SegmentSize()) <= a.mem.Size() {
		return nil
	}
	if err := a.mem.Remap(); err != nil {
		return err
	}
	a.node.Store((*node.Node)(a.mem.Pointer()))
	return nil
}

// attachNode returns the Node of an attached segment.
func attachNode(mem *shm.SharedMemory, o options) (*node.Node, error) {
	if mem.Size() < int(node.Size) {
		return nil, fmt.Errorf("%w: %d byte segment cannot hold a node", ErrNotFound, mem.Size())
	}
	return node.Attach(mem.Pointer(), o.attachTimeout)
}
