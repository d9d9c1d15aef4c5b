package shmdf

import (
	"gosuda.org/shmdf/internal/node"
	"gosuda.org/shmdf/internal/shm"
)

// Snapshot is a point-in-time view of a segment's bookkeeping.
type Snapshot = node.Snapshot

// Inspect reads the state of segment name without occupying a slot.
func Inspect(name string, opts ...Option) (Snapshot, error) {
	o := newOptions(opts)

	mem, err := shm.Attach(o.dir, name)
	if err != nil {
		return Snapshot{}, wrap("inspect", name, err)
	}
	defer mem.Close()

	n, err := attachNode(mem, o)
	if err != nil {
		return Snapshot{}, wrap("inspect", name, err)
	}
	return n.Snapshot(), nil
}

// Remove unlinks segment name. Attached handles keep working on their
// mapping, but nothing new can connect. Use it to clear a segment left
// behind by a process that died without closing.
func Remove(name string, opts ...Option) error {
	o := newOptions(opts)

	if err := shm.Destroy(o.dir, name); err != nil {
		return wrap("remove", name, err)
	}
	o.logger.Debug("segment removed", "segment", name, "dir", o.dir)
	return nil
}

// Exists reports whether segment name is present.
func Exists(name string, opts ...Option) bool {
	o := newOptions(opts)
	return shm.Exists(o.dir, name)
}
