package shmdf

import (
	"errors"
	"fmt"

	"gosuda.org/shmdf/internal/futex"
	"gosuda.org/shmdf/internal/node"
	"gosuda.org/shmdf/internal/shm"
)

// Error definitions for shmdf operations
var (
	ErrCapacityExceeded     = node.ErrCapacityExceeded
	ErrInvalidSlot          = node.ErrInvalidSlot
	ErrSynchronizationFault = node.ErrSynchronizationFault
	ErrPayloadMismatch      = node.ErrPayloadMismatch
	ErrNotFound             = shm.ErrNotFound
	ErrAlreadyExists        = shm.ErrAlreadyExists
	ErrInvalidName          = shm.ErrInvalidName
	ErrTimeout              = futex.ErrTimeout

	ErrShutdown       = errors.New("shmdf: shutdown requested")
	ErrSinkClosed     = errors.New("shmdf: sink closed")
	ErrClosed         = errors.New("shmdf: handle closed")
	ErrInvalidPayload = errors.New("shmdf: payload type is not fixed-layout")
)

// wrap maps node errors onto the error kinds callers act on.
func wrap(op, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, node.ErrAlreadyBound):
		err = fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	case errors.Is(err, node.ErrNotBound), errors.Is(err, node.ErrUninitialized), errors.Is(err, node.ErrRetired):
		err = fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("%s %s: %w", op, name, err)
}
