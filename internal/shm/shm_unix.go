//go:build unix

package shm

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Create creates segment name in dir with size bytes, zero filled. It fails
// with ErrAlreadyExists if the segment exists.
func Create(dir, name string, size int) (*SharedMemory, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("shmdf: invalid segment size %d", size)
	}

	path := Path(dir, name)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0600)
	if errors.Is(err, unix.EEXIST) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file %s: %w", path, err)
	}

	cleanup := func() {
		unix.Close(fd)
		unix.Unlink(path)
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to resize segment file: %w", err)
	}

	data, err := mmap(fd, size)
	if err != nil {
		cleanup()
		return nil, err
	}

	return &SharedMemory{name: name, path: path, fd: fd, data: data}, nil
}

// Attach maps the existing segment name in dir at its current size.
func Attach(dir, name string) (*SharedMemory, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	path := Path(dir, name)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if errors.Is(err, unix.ENOENT) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open segment file %s: %w", path, err)
	}

	size, err := fileSize(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if size == 0 {
		// The creator has not sized it yet.
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %s is empty", ErrNotFound, path)
	}

	data, err := mmap(fd, size)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &SharedMemory{name: name, path: path, fd: fd, data: data}, nil
}

// Resize grows the segment to size bytes and remaps the view. Shrinking is
// not supported; a smaller size is a no-op.
func (s *SharedMemory) Resize(size int) error {
	if s.data == nil {
		return ErrClosed
	}
	if size <= len(s.data) {
		return nil
	}

	if err := unix.Ftruncate(s.fd, int64(size)); err != nil {
		return fmt.Errorf("failed to resize segment file: %w", err)
	}
	return s.remap(size)
}

// Remap extends the view to the current size of the backing file, picking up
// a Resize performed by another process.
func (s *SharedMemory) Remap() error {
	if s.data == nil {
		return ErrClosed
	}

	size, err := fileSize(s.fd)
	if err != nil {
		return err
	}
	if size <= len(s.data) {
		return nil
	}
	return s.remap(size)
}

func (s *SharedMemory) remap(size int) error {
	data, err := mmap(s.fd, size)
	if err != nil {
		return err
	}
	s.retired = append(s.retired, s.data)
	s.data = data
	return nil
}

// Close unmaps every view and closes the descriptor. The segment itself
// survives; see Destroy.
func (s *SharedMemory) Close() error {
	if s.data == nil {
		return nil
	}

	var errs []error
	for _, view := range append(s.retired, s.data) {
		if err := unix.Munmap(view); err != nil {
			errs = append(errs, fmt.Errorf("munmap failed: %w", err))
		}
	}
	if err := unix.Close(s.fd); err != nil {
		errs = append(errs, err)
	}

	s.data, s.retired = nil, nil
	return errors.Join(errs...)
}

// Destroy unlinks the segment this attachment refers to.
func (s *SharedMemory) Destroy() error {
	return Destroy(filepath.Dir(s.path), s.name)
}

func mmap(fd, size int) ([]byte, error) {
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return data, nil
}

func fileSize(fd int) (int, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, fmt.Errorf("failed to stat segment file: %w", err)
	}
	return int(st.Size), nil
}
