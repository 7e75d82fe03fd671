package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kdimtricp/vslides/internal/encoder"
	"github.com/kdimtricp/vslides/internal/export"
	"github.com/kdimtricp/vslides/internal/framestore"
)

const maxThumbnail = 1024

type frameResponse struct {
	Index     int     `json:"index"`
	ID        uint64  `json:"id"`
	Timestamp float64 `json:"timestamp"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Selected  bool    `json:"selected"`
	ImageURL  string  `json:"image_url"`
}

type framesResponse struct {
	VideoID  string          `json:"video_id"`
	Running  bool            `json:"running"`
	Frames   []frameResponse `json:"frames"`
	Selected int             `json:"selected"`
}

func frameIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", framestore.ErrIndexOutOfRange, raw)
	}
	return i, nil
}

func (app *App) storeFor(w http.ResponseWriter, r *http.Request) (string, *framestore.Store, bool) {
	ctx := r.Context()
	v, err := app.VideoRepo.GetVideoByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, app.Logger, err)
		return "", nil, false
	}
	store, err := app.Extraction.Store(ctx, v.ID)
	if err != nil {
		writeError(w, app.Logger, err)
		return "", nil, false
	}
	return v.ID, store, true
}

func (app *App) ListFramesHandler(w http.ResponseWriter, r *http.Request) {
	videoID, store, ok := app.storeFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, app.framesResponse(videoID, store))
}

func (app *App) framesResponse(videoID string, store *framestore.Store) framesResponse {
	frames := store.Frames()
	resp := framesResponse{
		VideoID: videoID,
		Running: app.Extraction.Active(videoID),
		Frames:  make([]frameResponse, 0, len(frames)),
	}
	for i, f := range frames {
		selected := store.IsSelected(i)
		if selected {
			resp.Selected++
		}
		resp.Frames = append(resp.Frames, frameResponse{
			Index:     i,
			ID:        f.ID,
			Timestamp: f.Timestamp,
			Width:     f.Width,
			Height:    f.Height,
			Selected:  selected,
			ImageURL:  fmt.Sprintf("/videos/%s/frames/%d/image", videoID, i),
		})
	}
	return resp
}

func (app *App) FrameImageHandler(w http.ResponseWriter, r *http.Request) {
	_, store, ok := app.storeFor(w, r)
	if !ok {
		return
	}

	index, err := frameIndex(r)
	if err != nil {
		writeError(w, app.Logger, err)
		return
	}
	frame, err := store.Frame(index)
	if err != nil {
		writeError(w, app.Logger, err)
		return
	}

	blob, err := app.Storage.ReadFile(r.Context(), frame.ImageRef)
	if err != nil {
		writeError(w, app.Logger, err)
		return
	}

	if raw := r.URL.Query().Get("thumb"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > maxThumbnail {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("thumb must be between 1 and %d", maxThumbnail)})
			return
		}
		blob, err = encoder.Thumbnail(blob, uint(size))
		if err != nil {
			writeError(w, app.Logger, err)
			return
		}
	}

	w.Header().Set("Content-Type", encoder.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(blob)
}

// mutate runs fn against the video's store and answers with the new gallery.
func (app *App) mutate(w http.ResponseWriter, r *http.Request, fn func(*framestore.Store, int) error) {
	videoID, store, ok := app.storeFor(w, r)
	if !ok {
		return
	}
	index, err := frameIndex(r)
	if err != nil {
		writeError(w, app.Logger, err)
		return
	}

	err = app.Extraction.Mutate(r.Context(), videoID, func(s *framestore.Store) error {
		return fn(s, index)
	})
	if err != nil {
		writeError(w, app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, app.framesResponse(videoID, store))
}

func (app *App) ToggleFrameHandler(w http.ResponseWriter, r *http.Request) {
	app.mutate(w, r, func(s *framestore.Store, index int) error {
		_, err := s.ToggleSelect(index)
		return err
	})
}

func (app *App) DeleteFrameHandler(w http.ResponseWriter, r *http.Request) {
	var removed framestore.Frame
	app.mutate(w, r, func(s *framestore.Store, index int) error {
		f, err := s.Frame(index)
		if err != nil {
			return err
		}
		if err := s.Remove(index); err != nil {
			return err
		}
		removed = f
		return nil
	})

	if removed.ImageRef != "" {
		if err := app.Storage.DeleteFile(r.Context(), removed.ImageRef); err != nil {
			app.Logger.Warn("failed to delete slide image", zap.String("ref", removed.ImageRef), zap.Error(err))
		}
	}
}

func (app *App) MoveFrameHandler(w http.ResponseWriter, r *http.Request) {
	raw := r.FormValue("to")
	to, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, app.Logger, fmt.Errorf("%w: target %q", framestore.ErrIndexOutOfRange, raw))
		return
	}
	app.mutate(w, r, func(s *framestore.Store, index int) error {
		return s.Move(index, to)
	})
}

// ExportHandler renders the selected slides in gallery order as a PDF. The
// document is assembled in memory so a failure never yields a truncated file.
func (app *App) ExportHandler(w http.ResponseWriter, r *http.Request) {
	videoID, store, ok := app.storeFor(w, r)
	if !ok {
		return
	}
	if app.Extraction.Active(videoID) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "extraction still running"})
		return
	}

	ctx := r.Context()
	pages, err := export.Pages(ctx, app.Storage, store.SelectedFrames())
	if err != nil {
		writeError(w, app.Logger, err)
		return
	}

	var buf bytes.Buffer
	if err := export.PDF(ctx, pages, &buf); err != nil {
		writeError(w, app.Logger, err)
		return
	}

	app.Logger.Info("exported slides", zap.String("video_id", videoID), zap.Int("pages", len(pages)))

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="slides.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}
