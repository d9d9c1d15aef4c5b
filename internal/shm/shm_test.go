//go:build unix

package shm

import (
	"errors"
	"os"
	"testing"
)

// TestCreateAttach tests that an attached segment shares memory with its creator
func TestCreateAttach(t *testing.T) {
	dir := t.TempDir()

	seg, err := Create(dir, "frames", 4096)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer seg.Close()

	if seg.Name() != "frames" {
		t.Errorf("Expected name frames, got %s", seg.Name())
	}
	if seg.Size() != 4096 {
		t.Errorf("Expected size 4096, got %d", seg.Size())
	}
	if seg.Path() != Path(dir, "frames") {
		t.Errorf("Unexpected path %s", seg.Path())
	}

	for i, b := range seg.Data() {
		if b != 0 {
			t.Fatalf("Byte %d of a new segment is %d", i, b)
		}
	}
	copy(seg.Data(), "hello")

	other, err := Attach(dir, "frames")
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer other.Close()

	if other.Size() != 4096 {
		t.Errorf("Attached size %d, want 4096", other.Size())
	}
	if got := string(other.Data()[:5]); got != "hello" {
		t.Errorf("Attached view reads %q", got)
	}
}

// TestCreateExisting tests that creating an existing segment fails
func TestCreateExisting(t *testing.T) {
	dir := t.TempDir()

	seg, err := Create(dir, "pos", 128)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer seg.Close()

	if _, err := Create(dir, "pos", 128); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
}

// TestAttachMissing tests attaching to a segment that does not exist
func TestAttachMissing(t *testing.T) {
	if _, err := Attach(t.TempDir(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// TestAttachEmpty tests attaching to a zero-length segment file
func TestAttachEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(Path(dir, "empty"), nil, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Attach(dir, "empty"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an unsized segment, got %v", err)
	}
}

// TestInvalidNames tests rejection of names that are not plain file names
func TestInvalidNames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"", "a/b", ".", ".."} {
		if _, err := Create(dir, name, 64); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Create(%q): expected ErrInvalidName, got %v", name, err)
		}
		if _, err := Attach(dir, name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Attach(%q): expected ErrInvalidName, got %v", name, err)
		}
	}
}

// TestResizeRemap tests growing a segment and picking up the growth elsewhere
func TestResizeRemap(t *testing.T) {
	dir := t.TempDir()

	seg, err := Create(dir, "grow", 4096)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer seg.Close()

	other, err := Attach(dir, "grow")
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer other.Close()

	copy(seg.Data(), "header")
	old := other.Data()

	if err := seg.Resize(3 * 4096); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if seg.Size() != 3*4096 {
		t.Fatalf("Expected size %d after resize, got %d", 3*4096, seg.Size())
	}
	if got := string(seg.Data()[:6]); got != "header" {
		t.Errorf("Resize lost data: %q", got)
	}
	copy(seg.Data()[2*4096:], "tail")

	if err := seg.Resize(4096); err != nil {
		t.Errorf("Shrinking resize failed: %v", err)
	}
	if seg.Size() != 3*4096 {
		t.Errorf("Shrinking resize changed size to %d", seg.Size())
	}

	if err := other.Remap(); err != nil {
		t.Fatalf("Remap failed: %v", err)
	}
	if other.Size() != 3*4096 {
		t.Fatalf("Expected remapped size %d, got %d", 3*4096, other.Size())
	}
	if got := string(other.Data()[2*4096 : 2*4096+4]); got != "tail" {
		t.Errorf("Remapped view reads %q", got)
	}

	// The retired view aliases the same pages until Close.
	copy(other.Data()[6:], "!")
	if old[6] != '!' {
		t.Error("Retired view does not alias the segment")
	}
}

// TestDestroy tests unlinking a segment
func TestDestroy(t *testing.T) {
	dir := t.TempDir()

	seg, err := Create(dir, "gone", 64)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer seg.Close()

	if !Exists(dir, "gone") {
		t.Fatal("Exists reported false for a new segment")
	}
	if err := seg.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if Exists(dir, "gone") {
		t.Error("Segment still exists after Destroy")
	}
	if _, err := Attach(dir, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Attach after Destroy: expected ErrNotFound, got %v", err)
	}
	if err := Destroy(dir, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Second Destroy: expected ErrNotFound, got %v", err)
	}

	// The creator's view survives the unlink.
	seg.Data()[0] = 1
}

// TestCloseIdempotent tests that closing twice is harmless
func TestCloseIdempotent(t *testing.T) {
	seg, err := Create(t.TempDir(), "twice", 64)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := seg.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := seg.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
	if err := seg.Resize(128); !errors.Is(err, ErrClosed) {
		t.Errorf("Resize after Close: expected ErrClosed, got %v", err)
	}
}

// TestPageAlign tests rounding sizes up to whole pages
func TestPageAlign(t *testing.T) {
	if got := PageAlign(1); got != pagesize {
		t.Errorf("PageAlign(1) = %d, want %d", got, pagesize)
	}
	if got := PageAlign(pagesize); got != pagesize {
		t.Errorf("PageAlign(pagesize) = %d", got)
	}
	if got := PageAlign(pagesize + 1); got != 2*pagesize {
		t.Errorf("PageAlign(pagesize+1) = %d", got)
	}
}
