package storage

import (
	"context"
	"errors"
	"io"
)

var ErrInvalidPath = errors.New("invalid path")

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// Storage holds uploaded videos and encoded slide images. Names returned by
// SaveFile are opaque references for the other methods.
type Storage interface {
	SaveFile(ctx context.Context, r io.Reader, info FileInfo) (string, error)
	OpenFile(ctx context.Context, name string) (io.ReadSeekCloser, error)
	ReadFile(ctx context.Context, name string) ([]byte, error)
	DeleteFile(ctx context.Context, name string) error

	// LocalPath returns a filesystem path for name, fetching a temporary copy
	// when the backend is remote. The cleanup func must always be called.
	LocalPath(ctx context.Context, name string) (string, func(), error)
}
