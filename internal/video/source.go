package video

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrInvalidInput reports that a file is not a decodable video.
var ErrInvalidInput = errors.New("not a decodable video")

// Frame is a rendered RGBA pixel buffer, 4 bytes per pixel, rows packed
// without padding.
type Frame struct {
	Pix    []byte
	Width  int
	Height int
}

// Image wraps the buffer as an *image.RGBA without copying.
func (f Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

func (f Frame) Validate() error {
	if f.Width < 1 || f.Height < 1 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if len(f.Pix) != f.Width*f.Height*4 {
		return fmt.Errorf("frame buffer has %d bytes, want %d", len(f.Pix), f.Width*f.Height*4)
	}
	return nil
}

// Source renders frames of one opened video. Seek positions the source and
// Render returns the frame at the current position. Rendered frames own their
// pixels; a later Render must not overwrite them. A Source is used by a
// single extraction run at a time.
type Source interface {
	Duration() float64
	Width() int
	Height() int
	Seek(ctx context.Context, seconds float64) error
	Render(ctx context.Context) (Frame, error)
	Close() error
}

type Opener interface {
	Open(ctx context.Context, path string) (Source, error)
}

// Info is the probed metadata of a video file.
type Info struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}
