package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Video struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Filename    string    `json:"-"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UploadTime  time.Time `json:"upload_time"`
	Duration    float64   `json:"duration"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
}

func NewVideo(title, description, filename, contentType string, size int64) *Video {
	return &Video{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		UploadTime:  time.Now(),
	}
}

// VideoInfo is the human readable summary shown next to a video.
type VideoInfo struct {
	Duration   string `json:"duration"`
	Dimensions string `json:"dimensions"`
	Size       string `json:"size"`
}

func (v *Video) Info() VideoInfo {
	return VideoInfo{
		Duration:   FormatDuration(v.Duration),
		Dimensions: FormatDimensions(v.Width, v.Height),
		Size:       FormatSize(v.Size),
	}
}

// FormatDuration renders seconds as m:ss, dropping fractions.
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func FormatDimensions(width, height int) string {
	return fmt.Sprintf("%d × %d", width, height)
}

func FormatSize(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
}
