package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kdimtricp/vslides/internal/extraction"
)

type sessionResponse struct {
	SessionID   string                   `json:"session_id"`
	VideoID     string                   `json:"video_id"`
	Status      string                   `json:"status"`
	Settings    extraction.Settings      `json:"settings"`
	Progress    extraction.ProgressEvent `json:"progress"`
	Slides      int                      `json:"slides"`
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

func newSessionResponse(s *extraction.Session) sessionResponse {
	resp := sessionResponse{
		SessionID:   s.ID,
		VideoID:     s.VideoID,
		Status:      s.Status(),
		Settings:    s.Settings,
		Progress:    s.Progress(),
		Slides:      s.Store.Len(),
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt(),
	}
	if err := s.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// parseSettings overrides the configured defaults with the form values
// sensitivity, interval and stability.
func parseSettings(r *http.Request, defaults extraction.Settings) (extraction.Settings, error) {
	s := defaults

	if v := r.FormValue("sensitivity"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return s, fmt.Errorf("%w: sensitivity %q", extraction.ErrInvalidSettings, v)
		}
		s.SensitivityThreshold = f
	}
	if v := r.FormValue("interval"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return s, fmt.Errorf("%w: interval %q", extraction.ErrInvalidSettings, v)
		}
		s.SamplingInterval = f
	}
	if v := r.FormValue("stability"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return s, fmt.Errorf("%w: stability %q", extraction.ErrInvalidSettings, v)
		}
		s.RequiredStabilityFrames = n
	}
	return s, s.Validate()
}

func (app *App) StartExtractionHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := app.VideoRepo.GetVideoByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, app.Logger, err)
		return
	}

	settings, err := parseSettings(r, app.Extraction.Defaults())
	if err != nil {
		writeError(w, app.Logger, err)
		return
	}

	session, err := app.Extraction.Start(ctx, v.ID, v.Filename, settings)
	if err != nil {
		writeError(w, app.Logger, fmt.Errorf("failed to start extraction: %w", err))
		return
	}

	app.Logger.Info("extraction started",
		zap.String("video_id", v.ID),
		zap.String("session_id", session.ID),
	)
	writeJSON(w, http.StatusAccepted, newSessionResponse(session))
}

func (app *App) SessionHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := app.Extraction.GetSession(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, app.Logger, extraction.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (app *App) StopExtractionHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.Extraction.Stop(chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, app.Logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// SessionStreamHandler relays the session updates as Server-Sent Events until
// the run ends or the client goes away.
func (app *App) SessionStreamHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := app.Extraction.GetSession(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, app.Logger, extraction.ErrSessionNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	clientGone := r.Context().Done()

	for {
		select {
		case update, ok := <-session.Updates:
			if !ok {
				return
			}

			data, err := json.Marshal(update.Data)
			if err != nil {
				app.Logger.Warn("failed to marshal update", zap.String("type", update.Type), zap.Error(err))
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", update.Type, data)
			flusher.Flush()

		case <-clientGone:
			return
		}
	}
}
