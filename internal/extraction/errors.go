package extraction

import (
	"errors"
	"fmt"

	"github.com/kdimtricp/vslides/internal/video"
)

var (
	// ErrInvalidInput is returned before sampling starts when the file has no
	// decodable video stream or a non-positive duration.
	ErrInvalidInput = video.ErrInvalidInput

	ErrInvalidSettings = errors.New("invalid extraction settings")
	ErrSessionNotFound = errors.New("session not found")
	ErrRunActive       = errors.New("an extraction is running for this video")
)

// SeekError ends a run. Frames kept before it stay in the store.
type SeekError struct {
	Timestamp float64
	Phase     string
	Err       error
}

func (e *SeekError) Error() string {
	return fmt.Sprintf("%s failed at %.3fs: %v", e.Phase, e.Timestamp, e.Err)
}

func (e *SeekError) Unwrap() error { return e.Err }

// EncodeError drops one accepted frame. The run carries on.
type EncodeError struct {
	Timestamp float64
	Phase     string
	Err       error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("%s failed for frame at %.3fs: %v", e.Phase, e.Timestamp, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
