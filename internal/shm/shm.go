// Package shm manages named shared memory segments backed by files in a
// tmpfs directory (normally /dev/shm).
//
// A segment is created once, attached by any number of processes, grown in
// place by its creator and unlinked explicitly. Growing never moves data:
// the file is extended and the caller's view remapped, so offsets recorded
// inside the segment stay valid.
package shm

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unsafe"
)

// pagesize stores the system page size for segment sizing
var pagesize = uintptr(os.Getpagesize())

// Prefix is prepended to segment names to form file names.
const Prefix = "shmdf."

var (
	ErrNotFound      = errors.New("shmdf: segment not found")
	ErrAlreadyExists = errors.New("shmdf: segment already exists")
	ErrInvalidName   = errors.New("shmdf: invalid segment name")
	ErrClosed        = errors.New("shmdf: segment closed")
)

// SharedMemory is one process's attachment to a named segment.
//
// Views retired by Resize or Remap stay mapped until Close, so pointers a
// concurrent goroutine took into an older view remain valid.
type SharedMemory struct {
	name    string // Name of the segment
	path    string // Backing file
	fd      int    // Open descriptor of the backing file
	data    []byte // Current view
	retired [][]byte
}

// Name returns the segment name.
func (s *SharedMemory) Name() string {
	return s.name
}

// Path returns the backing file path.
func (s *SharedMemory) Path() string {
	return s.path
}

// Size returns the size of the current view in bytes.
func (s *SharedMemory) Size() int {
	return len(s.data)
}

// FD returns the descriptor of the backing file.
func (s *SharedMemory) FD() uintptr {
	return uintptr(s.fd)
}

// Data returns the current view.
func (s *SharedMemory) Data() []byte {
	return s.data
}

// Pointer returns the address of the first byte of the current view.
func (s *SharedMemory) Pointer() unsafe.Pointer {
	if len(s.data) == 0 {
		return nil
	}
	return unsafe.Pointer(&s.data[0])
}

// DefaultDir is /dev/shm when it exists and the system temp directory otherwise.
func DefaultDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// Path returns the backing file of segment name in dir.
func Path(dir, name string) string {
	if dir == "" {
		dir = DefaultDir()
	}
	return filepath.Join(dir, Prefix+name)
}

func validName(name string) error {
	if name == "" || strings.ContainsRune(name, '/') || name == "." || name == ".." {
		return ErrInvalidName
	}
	return nil
}

// Destroy unlinks segment name in dir. Processes that still have it mapped
// keep their views; new attachments fail with ErrNotFound.
func Destroy(dir, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	err := os.Remove(Path(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// Exists reports whether segment name exists in dir.
func Exists(dir, name string) bool {
	_, err := os.Stat(Path(dir, name))
	return err == nil
}

// PageAlign rounds size up to a multiple of the system page size.
func PageAlign(size uintptr) uintptr {
	return ((size + pagesize - 1) / pagesize) * pagesize
}
