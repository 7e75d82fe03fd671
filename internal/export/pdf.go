// Package export assembles the selected slides into a PDF with one page per
// slide, each page sized to its image.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kdimtricp/vslides/internal/framestore"
	"github.com/kdimtricp/vslides/internal/metrics"
	"github.com/kdimtricp/vslides/internal/storage"
)

var ErrNoPages = errors.New("no slides selected")

var tracer = otel.Tracer("github.com/kdimtricp/vslides/internal/export")

func init() {
	// Keep pdfcpu from creating a config directory under $HOME.
	model.ConfigPath = "disable"
}

// Error is returned by every export failure. No output file is left behind.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Page is one encoded slide image.
type Page struct {
	Blob   []byte
	Width  int
	Height int
}

// Pages loads the image of each frame, keeping the order given.
func Pages(ctx context.Context, blobs storage.Storage, frames []framestore.Frame) ([]Page, error) {
	pages := make([]Page, 0, len(frames))
	for _, f := range frames {
		blob, err := blobs.ReadFile(ctx, f.ImageRef)
		if err != nil {
			return nil, &Error{Op: "load", Err: fmt.Errorf("slide %d: %w", f.ID, err)}
		}
		pages = append(pages, Page{Blob: blob, Width: f.Width, Height: f.Height})
	}
	return pages, nil
}

// PDF writes pages to w in order.
func PDF(ctx context.Context, pages []Page, w io.Writer) (err error) {
	_, span := tracer.Start(ctx, "export.PDF")
	span.SetAttributes(attribute.Int("pages", len(pages)))
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.ExportsTotal.WithLabelValues(status).Inc()
		span.End()
	}()

	if len(pages) == 0 {
		return &Error{Op: "assemble", Err: ErrNoPages}
	}

	images := make([]io.Reader, 0, len(pages))
	for i, p := range pages {
		if len(p.Blob) == 0 {
			return &Error{Op: "assemble", Err: fmt.Errorf("page %d has no image", i+1)}
		}
		images = append(images, bytes.NewReader(p.Blob))
	}

	// Pos "full" sizes every page to its image.
	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImages(nil, w, images, imp, model.NewDefaultConfiguration()); err != nil {
		return &Error{Op: "assemble", Err: err}
	}
	return nil
}

// WriteFile writes the PDF next to path first and renames it into place, so
// path either holds a complete document or is untouched.
func WriteFile(ctx context.Context, path string, pages []Page) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".vslides-*.pdf")
	if err != nil {
		return &Error{Op: "write", Err: err}
	}
	defer os.Remove(tmp.Name())

	if err := PDF(ctx, pages, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return &Error{Op: "write", Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &Error{Op: "write", Err: err}
	}
	return nil
}
