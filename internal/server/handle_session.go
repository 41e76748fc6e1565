package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type ResolveRequest struct {
	Code string `json:"code"`
}

type ResolveResponse struct {
	Code      string `json:"code"`
	SessionID string `json:"sessionId"`
}

func handleResolve(logger *slog.Logger, sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResolveRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		slot, err := sessions.Resolve(r.Context(), req.Code)
		if err != nil {
			writeEngineError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, ResolveResponse{Code: slot.Code, SessionID: slot.SessionID})
	}
}

func handleJoin(logger *slog.Logger, sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := sessions.Join(r.Context(), chi.URLParam(r, "sessionID"), id.UserID, id.Name); err != nil {
			writeEngineError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleState(logger *slog.Logger, sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := sessions.State(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeEngineError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
