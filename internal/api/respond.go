package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kdimtricp/vslides/internal/database"
	"github.com/kdimtricp/vslides/internal/export"
	"github.com/kdimtricp/vslides/internal/extraction"
	"github.com/kdimtricp/vslides/internal/framestore"
	"github.com/kdimtricp/vslides/internal/processing"
	"github.com/kdimtricp/vslides/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, extraction.ErrSessionNotFound),
		errors.Is(err, framestore.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, processing.ErrBusy),
		errors.Is(err, extraction.ErrRunActive):
		return http.StatusConflict
	case errors.Is(err, extraction.ErrInvalidSettings),
		errors.Is(err, extraction.ErrInvalidInput),
		errors.Is(err, storage.ErrInvalidPath),
		errors.Is(err, export.ErrNoPages):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
