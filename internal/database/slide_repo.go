package database

import (
	"context"
	"fmt"

	"github.com/kdimtricp/vslides/internal/fingerprint"
	"github.com/kdimtricp/vslides/internal/framestore"
)

// SlideRepository saves a video's slide store: order, selection, image
// references and fingerprints.
type SlideRepository struct {
	db *DB
}

func NewSlideRepository(db *DB) *SlideRepository {
	return &SlideRepository{db: db}
}

// SaveStore replaces the saved slides of videoID with the store content.
func (r *SlideRepository) SaveStore(ctx context.Context, videoID string, store *framestore.Store) error {
	frames := store.Frames()
	selected := make(map[int]bool)
	for _, i := range store.Selected() {
		selected[i] = true
	}

	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.db.rebind(`DELETE FROM slides WHERE video_id = ?`), videoID); err != nil {
		return fmt.Errorf("failed to clear slides: %w", err)
	}

	insert := r.db.rebind(`
		INSERT INTO slides (
			video_id, position, frame_id, offset_seconds, image_ref,
			width, height, fingerprint, selected
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for i, f := range frames {
		fp, err := f.Fingerprint.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to encode fingerprint of slide %d: %w", f.ID, err)
		}
		if _, err := tx.ExecContext(ctx, insert,
			videoID,
			i,
			int64(f.ID),
			f.Timestamp,
			f.ImageRef,
			f.Width,
			f.Height,
			fp,
			selected[i],
		); err != nil {
			return fmt.Errorf("failed to insert slide %d: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit slides: %w", err)
	}
	return nil
}

// LoadStore restores the saved slides of videoID into store. It reports
// false and leaves store alone when nothing is saved.
func (r *SlideRepository) LoadStore(ctx context.Context, videoID string, store *framestore.Store) (bool, error) {
	rows, err := r.db.conn.QueryContext(ctx, r.db.rebind(`
		SELECT frame_id, offset_seconds, image_ref, width, height, fingerprint, selected
		FROM slides
		WHERE video_id = ?
		ORDER BY position`), videoID)
	if err != nil {
		return false, fmt.Errorf("failed to query slides: %w", err)
	}
	defer rows.Close()

	var frames []framestore.Frame
	var selected []int
	for rows.Next() {
		var (
			f      framestore.Frame
			id     int64
			fp     []byte
			chosen bool
		)
		if err := rows.Scan(&id, &f.Timestamp, &f.ImageRef, &f.Width, &f.Height, &fp, &chosen); err != nil {
			return false, fmt.Errorf("failed to scan slide: %w", err)
		}

		var decoded fingerprint.Fingerprint
		if err := decoded.UnmarshalBinary(fp); err != nil {
			return false, fmt.Errorf("slide %d: %w", id, err)
		}
		f.ID = uint64(id)
		f.Fingerprint = decoded

		if chosen {
			selected = append(selected, len(frames))
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to read slides: %w", err)
	}

	if len(frames) == 0 {
		return false, nil
	}
	if err := store.Restore(frames, selected); err != nil {
		return false, err
	}
	return true, nil
}
