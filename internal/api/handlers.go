package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kdimtricp/vslides/internal/database"
	"github.com/kdimtricp/vslides/internal/extraction"
	"github.com/kdimtricp/vslides/internal/models"
	"github.com/kdimtricp/vslides/internal/storage"
	"github.com/kdimtricp/vslides/internal/video"
)

// Prober reads duration and frame size of an uploaded file.
type Prober interface {
	Probe(ctx context.Context, path string) (video.Info, error)
}

type App struct {
	Storage       storage.Storage
	VideoRepo     *database.VideoRepository
	Extraction    *extraction.Service
	Prober        Prober
	MaxUploadSize int64
	Logger        *zap.Logger
}

var videoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
}

type videoResponse struct {
	*models.Video
	Info models.VideoInfo `json:"info"`
}

func newVideoResponse(v *models.Video) videoResponse {
	return videoResponse{Video: v, Info: v.Info()}
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func (app *App) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "File too large or malformed upload"})
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Failed to get file"})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		known, ok := videoExtensions[strings.ToLower(filepath.Ext(header.Filename))]
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Please select a video file"})
			return
		}
		contentType = known
	}

	title := r.FormValue("title")
	if title == "" {
		title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	description := r.FormValue("description")

	ctx := r.Context()
	filename, err := app.Storage.SaveFile(ctx, file, storage.FileInfo{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
	})
	if err != nil {
		writeError(w, app.Logger, fmt.Errorf("failed to save file: %w", err))
		return
	}

	v := models.NewVideo(title, description, filename, contentType, header.Size)

	if app.Prober != nil {
		info, err := app.probe(ctx, filename)
		if err != nil {
			app.Storage.DeleteFile(ctx, filename)
			writeError(w, app.Logger, err)
			return
		}
		v.Duration, v.Width, v.Height = info.Duration, info.Width, info.Height
	}

	if err := app.VideoRepo.InsertVideo(ctx, v); err != nil {
		app.Storage.DeleteFile(ctx, filename)
		writeError(w, app.Logger, err)
		return
	}

	app.Logger.Info("video uploaded",
		zap.String("video_id", v.ID),
		zap.String("title", v.Title),
		zap.Int64("size", v.Size),
		zap.Float64("duration", v.Duration),
	)
	writeJSON(w, http.StatusCreated, newVideoResponse(v))
}

func (app *App) probe(ctx context.Context, filename string) (video.Info, error) {
	path, cleanup, err := app.Storage.LocalPath(ctx, filename)
	if err != nil {
		return video.Info{}, err
	}
	defer cleanup()
	return app.Prober.Probe(ctx, path)
}

func (app *App) ListVideosHandler(w http.ResponseWriter, r *http.Request) {
	videos, err := app.VideoRepo.SearchVideos(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, app.Logger, err)
		return
	}

	out := make([]videoResponse, 0, len(videos))
	for i := range videos {
		out = append(out, newVideoResponse(&videos[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (app *App) GetVideoHandler(w http.ResponseWriter, r *http.Request) {
	v, err := app.VideoRepo.GetVideoByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newVideoResponse(v))
}

func (app *App) DeleteVideoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := app.VideoRepo.GetVideoByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, app.Logger, err)
		return
	}

	if err := app.Extraction.Forget(ctx, v.ID); err != nil {
		writeError(w, app.Logger, err)
		return
	}
	if err := app.VideoRepo.DeleteVideo(ctx, v.ID); err != nil {
		writeError(w, app.Logger, err)
		return
	}
	if err := app.Storage.DeleteFile(ctx, v.Filename); err != nil {
		app.Logger.Warn("failed to delete video file", zap.String("video_id", v.ID), zap.Error(err))
	}

	w.WriteHeader(http.StatusNoContent)
}

func (app *App) StreamVideoHandler(w http.ResponseWriter, r *http.Request) {
	v, err := app.VideoRepo.GetVideoByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, app.Logger, err)
		return
	}

	file, err := app.Storage.OpenFile(r.Context(), v.Filename)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidPath) {
			writeError(w, app.Logger, err)
			return
		}
		http.Error(w, "Video file not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", v.ContentType)

	// ServeContent answers Range requests with 206 Partial Content.
	http.ServeContent(w, r, v.Filename, modTime(file, v.UploadTime), file)
}

func modTime(file interface{}, fallback time.Time) time.Time {
	if f, ok := file.(interface{ Stat() (os.FileInfo, error) }); ok {
		if st, err := f.Stat(); err == nil {
			return st.ModTime()
		}
	}
	return fallback
}
