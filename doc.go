// Package shmdf moves typed samples between processes through shared memory.
//
// A producer binds a Sink to a named segment and publishes values with
// SetValue. Up to NumSlots consumer processes Connect a Source to the same
// name and receive every value published after they joined with GetValue.
// Each publish is a rendezvous: SetValue returns only after every source
// that was attached when the value was published has read it, so the
// producer never overwrites a value that is still being read and a source
// never reads a value that is still being written.
//
// Payloads are fixed-layout Go values (no pointers, slices, strings, maps,
// channels, funcs or interfaces) optionally followed by a variable-length
// byte trailer, e.g. the pixels of a video frame.
//
//	sink, err := shmdf.Bind[sample.Pose]("pos")
//	...
//	err = sink.SetValue(pose)
//
//	src, err := shmdf.Connect[sample.Pose]("pos")
//	...
//	pose, err := src.GetValue()
//
// NotifySelf on either handle wakes a goroutine blocked in SetValue or
// GetValue, which then returns ErrShutdown.
package shmdf
