package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/groupquest/internal/groupquest"
	"github.com/playperu/groupquest/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeEngineError maps engine errors onto HTTP statuses. The wrapped
// message is safe to show: it never carries more than ids and limits.
func writeEngineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, groupquest.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, groupquest.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, groupquest.ErrLocked),
		errors.Is(err, groupquest.ErrAlreadyAdvanced),
		errors.Is(err, groupquest.ErrWrongPhase):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, groupquest.ErrInfeasible):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrConflict):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "too many concurrent updates, retry")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
