package extraction

import (
	"bytes"
	"context"
	"fmt"

	"github.com/kdimtricp/vslides/internal/encoder"
	"github.com/kdimtricp/vslides/internal/fingerprint"
	"github.com/kdimtricp/vslides/internal/framestore"
	"github.com/kdimtricp/vslides/internal/storage"
	"github.com/kdimtricp/vslides/internal/video"
)

type ImageEncoder interface {
	Encode(frame video.Frame, quality int) ([]byte, error)
}

// Candidate is a stable sample handed over by the StabilityDetector.
type Candidate struct {
	Timestamp   float64
	Frame       video.Frame
	Fingerprint fingerprint.Fingerprint
}

// Deduplicator keeps a candidate only when it differs enough from the slide
// kept last. Older slides are not consulted.
type Deduplicator struct {
	threshold    float64
	quality      int
	encoder      ImageEncoder
	blobs        storage.Storage
	store        *framestore.Store
	lastAccepted *fingerprint.Fingerprint
	lastScore    float64
}

func NewDeduplicator(threshold float64, quality int, enc ImageEncoder, blobs storage.Storage, store *framestore.Store) *Deduplicator {
	return &Deduplicator{
		threshold: threshold,
		quality:   quality,
		encoder:   enc,
		blobs:     blobs,
		store:     store,
	}
}

// Consider decides on c. On acceptance the frame is encoded, saved and
// appended to the store. An *EncodeError means c was accepted but could not
// be kept; it still becomes the reference for later candidates.
func (d *Deduplicator) Consider(ctx context.Context, c Candidate) (framestore.Frame, bool, error) {
	if d.lastAccepted != nil {
		d.lastScore = fingerprint.Compare(&c.Fingerprint, d.lastAccepted)
		if d.lastScore >= d.threshold {
			return framestore.Frame{}, false, nil
		}
	} else {
		d.lastScore = 0
	}

	fp := c.Fingerprint
	d.lastAccepted = &fp

	blob, err := d.encoder.Encode(c.Frame, d.quality)
	if err != nil {
		return framestore.Frame{}, false, &EncodeError{Timestamp: c.Timestamp, Phase: "encode", Err: err}
	}

	ref, err := d.blobs.SaveFile(ctx, bytes.NewReader(blob), storage.FileInfo{
		Filename:    fmt.Sprintf("slide-%.3f.jpg", c.Timestamp),
		ContentType: encoder.ContentType,
		Size:        int64(len(blob)),
	})
	if err != nil {
		return framestore.Frame{}, false, &EncodeError{Timestamp: c.Timestamp, Phase: "store", Err: err}
	}

	frame := d.store.Append(framestore.Frame{
		Timestamp:   c.Timestamp,
		ImageRef:    ref,
		Width:       c.Frame.Width,
		Height:      c.Frame.Height,
		Fingerprint: fp,
	})
	return frame, true, nil
}

// LastScore is the similarity computed by the latest Consider call, 0 when
// there was nothing to compare against.
func (d *Deduplicator) LastScore() float64 {
	return d.lastScore
}
