package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kdimtricp/vslides/internal/models"
)

type VideoRepository struct {
	db *DB
}

func NewVideoRepository(db *DB) *VideoRepository {
	return &VideoRepository{db: db}
}

const videoColumns = `id, title, description, filename, content_type, size, upload_time, duration, width, height`

func (r *VideoRepository) InsertVideo(ctx context.Context, video *models.Video) error {
	query := r.db.rebind(`INSERT INTO videos (` + videoColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.conn.ExecContext(ctx, query,
		video.ID,
		video.Title,
		video.Description,
		video.Filename,
		video.ContentType,
		video.Size,
		video.UploadTime.UTC(),
		video.Duration,
		video.Width,
		video.Height,
	)
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}
	return nil
}

func (r *VideoRepository) GetVideoByID(ctx context.Context, id string) (*models.Video, error) {
	query := r.db.rebind(`SELECT ` + videoColumns + ` FROM videos WHERE id = ?`)

	video, err := scanVideo(r.db.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("video %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return video, nil
}

func (r *VideoRepository) ListVideos(ctx context.Context) ([]models.Video, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY upload_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	return collectVideos(rows)
}

func (r *VideoRepository) SearchVideos(ctx context.Context, query string) ([]models.Video, error) {
	if query == "" {
		return r.ListVideos(ctx)
	}

	searchPattern := "%" + query + "%"
	where := `LOWER(title) LIKE LOWER(?) OR LOWER(description) LIKE LOWER(?)`
	if r.db.dbType == "postgres" {
		where = `title ILIKE ? OR description ILIKE ?`
	}

	rows, err := r.db.conn.QueryContext(ctx,
		r.db.rebind(`SELECT `+videoColumns+` FROM videos WHERE `+where+` ORDER BY upload_time DESC LIMIT 20`),
		searchPattern, searchPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search videos: %w", err)
	}
	return collectVideos(rows)
}

// UpdateVideoInfo stores the probed duration and size of a video.
func (r *VideoRepository) UpdateVideoInfo(ctx context.Context, id string, duration float64, width, height int) error {
	res, err := r.db.conn.ExecContext(ctx,
		r.db.rebind(`UPDATE videos SET duration = ?, width = ?, height = ? WHERE id = ?`),
		duration, width, height, id)
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}
	return expectOne(res, id)
}

// DeleteVideo removes the video and, by cascade, its slides.
func (r *VideoRepository) DeleteVideo(ctx context.Context, id string) error {
	res, err := r.db.conn.ExecContext(ctx, r.db.rebind(`DELETE FROM videos WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	return expectOne(res, id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVideo(row rowScanner) (*models.Video, error) {
	var v models.Video
	var description sql.NullString
	if err := row.Scan(
		&v.ID,
		&v.Title,
		&description,
		&v.Filename,
		&v.ContentType,
		&v.Size,
		&v.UploadTime,
		&v.Duration,
		&v.Width,
		&v.Height,
	); err != nil {
		return nil, err
	}
	v.Description = description.String
	return &v, nil
}

func collectVideos(rows *sql.Rows) ([]models.Video, error) {
	defer rows.Close()

	videos := []models.Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read videos: %w", err)
	}
	return videos, nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return nil
}
