package sample

import (
	"errors"
	"math"
	"testing"
	"time"
)

// TestPixelFormat tests names, parsing and channel counts
func TestPixelFormat(t *testing.T) {
	tests := []struct {
		format   PixelFormat
		name     string
		channels int
	}{
		{PixelFormatGray8, "gray8", 1},
		{PixelFormatBGR24, "bgr24", 3},
		{PixelFormatRGB24, "rgb24", 3},
		{PixelFormatBGRA32, "bgra32", 4},
	}

	for _, tt := range tests {
		if tt.format.String() != tt.name {
			t.Errorf("Expected %s, got %s", tt.name, tt.format)
		}
		if tt.format.Channels() != tt.channels {
			t.Errorf("%s: expected %d channels, got %d", tt.name, tt.channels, tt.format.Channels())
		}
		parsed, err := ParsePixelFormat(tt.name)
		if err != nil || parsed != tt.format {
			t.Errorf("Failed to parse %s: %v, %v", tt.name, parsed, err)
		}
	}

	if _, err := ParsePixelFormat("unknown"); err == nil {
		t.Error("Parsing unknown should fail")
	}
	if PixelFormat(42).String() != "PixelFormat(42)" {
		t.Errorf("Unexpected name %s", PixelFormat(42))
	}
}

// TestFrameValidate tests header checks against pixel data
func TestFrameValidate(t *testing.T) {
	f := NewFrame(4, 3, PixelFormatBGR24)
	if f.Stride != 12 || f.Size() != 36 {
		t.Fatalf("Unexpected geometry: stride %d, size %d", f.Stride, f.Size())
	}

	pixels := make([]byte, f.Size())
	if err := f.Validate(pixels); err != nil {
		t.Fatalf("Valid frame rejected: %v", err)
	}

	if err := f.Validate(pixels[:10]); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("Short pixels: expected ErrInvalidFrame, got %v", err)
	}

	bad := f
	bad.Stride = 8
	if err := bad.Validate(make([]byte, bad.Size())); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("Short stride: expected ErrInvalidFrame, got %v", err)
	}

	bad = f
	bad.Format = PixelFormatUnknown
	if err := bad.Validate(pixels); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("Unknown format: expected ErrInvalidFrame, got %v", err)
	}

	if err := NewFrame(0, 3, PixelFormatGray8).Validate(nil); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("Empty frame: expected ErrInvalidFrame, got %v", err)
	}
}

// TestFrameRow tests row extraction with padded strides
func TestFrameRow(t *testing.T) {
	f := NewFrame(2, 2, PixelFormatGray8)
	f.Stride = 4
	pixels := []byte{1, 2, 0, 0, 3, 4, 0, 0}

	if row := f.Row(pixels, 1); len(row) != 2 || row[0] != 3 || row[1] != 4 {
		t.Errorf("Unexpected row %v", row)
	}
}

// TestFrameRate tests the nominal rate derived from the period
func TestFrameRate(t *testing.T) {
	f := Frame{Period: int64(time.Second / 50)}
	if f.Rate() != 50 {
		t.Errorf("Expected 50 fps, got %v", f.Rate())
	}
	if (Frame{}).Rate() != 0 {
		t.Error("Unknown period should give zero rate")
	}
}

// TestPoseAdvance tests velocity and heading derived from successive positions
func TestPoseAdvance(t *testing.T) {
	var p Pose
	p = p.Advance(1, 0, Point2D{X: 10, Y: 10})
	if !p.Has(PositionValid) || p.Has(VelocityValid) {
		t.Fatalf("First pose flags %b", p.Flags)
	}

	p = p.Advance(2, int64(500*time.Millisecond), Point2D{X: 10, Y: 20})
	if !p.Has(PositionValid | VelocityValid | HeadingValid) {
		t.Fatalf("Second pose flags %b", p.Flags)
	}
	if p.Velocity != (Point2D{X: 0, Y: 20}) {
		t.Errorf("Expected velocity (0, 20), got %+v", p.Velocity)
	}
	if math.Abs(p.HeadDirection-math.Pi/2) > 1e-9 {
		t.Errorf("Expected heading pi/2, got %v", p.HeadDirection)
	}

	still := p.Advance(3, int64(time.Second), p.Position)
	if still.Has(HeadingValid) {
		t.Error("Heading should be unknown when not moving")
	}
}
