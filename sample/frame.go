// Package sample defines the payload types exchanged by pipeline stages.
//
// Every type here is fixed-layout so it can be placed in a segment as the
// value of a shmdf.Sink or shmdf.Source. Variable-size content such as the
// pixels of a Frame travels in the data trailer.
package sample

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidFrame = errors.New("sample: invalid frame")
)

// PixelFormat is the memory layout of one pixel.
type PixelFormat uint32

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatGray8
	PixelFormatBGR24
	PixelFormatRGB24
	PixelFormatBGRA32
)

var pixelFormatNames = [...]string{
	PixelFormatUnknown: "unknown",
	PixelFormatGray8:   "gray8",
	PixelFormatBGR24:   "bgr24",
	PixelFormatRGB24:   "rgb24",
	PixelFormatBGRA32:  "bgra32",
}

func (f PixelFormat) String() string {
	if int(f) < len(pixelFormatNames) {
		return pixelFormatNames[f]
	}
	return fmt.Sprintf("PixelFormat(%d)", uint32(f))
}

// ParsePixelFormat is the inverse of PixelFormat.String.
func ParsePixelFormat(s string) (PixelFormat, error) {
	for i, name := range pixelFormatNames {
		if i > 0 && name == s {
			return PixelFormat(i), nil
		}
	}
	return PixelFormatUnknown, fmt.Errorf("sample: unknown pixel format %q", s)
}

// Channels is the number of bytes per pixel.
func (f PixelFormat) Channels() int {
	switch f {
	case PixelFormatGray8:
		return 1
	case PixelFormatBGR24, PixelFormatRGB24:
		return 3
	case PixelFormatBGRA32:
		return 4
	}
	return 0
}

// Frame is the header of one video frame. Its pixels are the data trailer,
// Height rows of Stride bytes.
type Frame struct {
	SampleNumber uint64
	Timestamp    int64 // unix nanoseconds of capture
	Period       int64 // nominal nanoseconds between frames

	Width    uint32
	Height   uint32
	Stride   uint32
	Channels uint32
	Format   PixelFormat
	_        uint32
}

// NewFrame returns the header of a tightly packed frame.
func NewFrame(width, height int, format PixelFormat) Frame {
	channels := format.Channels()
	return Frame{
		Width:    uint32(width),
		Height:   uint32(height),
		Stride:   uint32(width * channels),
		Channels: uint32(channels),
		Format:   format,
	}
}

// Size is the number of pixel bytes the frame's trailer must hold.
func (f Frame) Size() int {
	return int(f.Stride) * int(f.Height)
}

// Time returns the capture time.
func (f Frame) Time() time.Time {
	return time.Unix(0, f.Timestamp)
}

// Rate is the nominal frame rate, or zero if the period is unknown.
func (f Frame) Rate() float64 {
	if f.Period <= 0 {
		return 0
	}
	return float64(time.Second) / float64(f.Period)
}

// Validate checks the header against itself and against the pixel data
// that came with it.
func (f Frame) Validate(pixels []byte) error {
	switch {
	case f.Width == 0 || f.Height == 0:
		return fmt.Errorf("%w: %dx%d", ErrInvalidFrame, f.Width, f.Height)
	case f.Format.Channels() == 0:
		return fmt.Errorf("%w: pixel format %s", ErrInvalidFrame, f.Format)
	case f.Channels != uint32(f.Format.Channels()):
		return fmt.Errorf("%w: %d channels for %s", ErrInvalidFrame, f.Channels, f.Format)
	case uint64(f.Stride) < uint64(f.Width)*uint64(f.Channels):
		return fmt.Errorf("%w: stride %d below row size", ErrInvalidFrame, f.Stride)
	case len(pixels) != f.Size():
		return fmt.Errorf("%w: %d pixel bytes, header says %d", ErrInvalidFrame, len(pixels), f.Size())
	}
	return nil
}

// Row returns row y of pixels without the stride padding.
func (f Frame) Row(pixels []byte, y int) []byte {
	off := y * int(f.Stride)
	return pixels[off : off+int(f.Width*f.Channels)]
}
