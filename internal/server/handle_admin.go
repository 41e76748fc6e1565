package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/groupquest/internal/groupquest"
)

func handleCommitGrouping(logger *slog.Logger, sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req groupquest.GroupingRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sessionID := chi.URLParam(r, "sessionID")
		if _, err := sessions.CommitGrouping(r.Context(), sessionID, req); err != nil {
			writeEngineError(w, logger, err)
			return
		}
		writeCurrentState(w, r, logger, sessions, sessionID)
	}
}

func handleCommitStart(logger *slog.Logger, sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		if _, err := sessions.CommitStart(r.Context(), sessionID); err != nil {
			writeEngineError(w, logger, err)
			return
		}
		writeCurrentState(w, r, logger, sessions, sessionID)
	}
}

// writeCurrentState answers an admin transition with the merged state so
// the caller sees the groups exactly as players will.
func writeCurrentState(w http.ResponseWriter, r *http.Request, logger *slog.Logger, sessions Sessions, sessionID string) {
	st, err := sessions.State(r.Context(), sessionID)
	if err != nil {
		writeEngineError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
