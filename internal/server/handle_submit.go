package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type SubmitRequest struct {
	Score     *float64 `json:"score" required:"true"`
	PassScore *float64 `json:"passScore" required:"true"`
}

func handleSubmit(logger *slog.Logger, sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ordinal, err := strconv.Atoi(chi.URLParam(r, "group"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "group must be a number")
			return
		}

		var req SubmitRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Score == nil || req.PassScore == nil {
			writeError(w, http.StatusBadRequest, "score and passScore are required")
			return
		}

		id := identityFrom(r)
		res, err := sessions.Submit(r.Context(), chi.URLParam(r, "sessionID"), ordinal, id.UserID, *req.Score, *req.PassScore)
		if err != nil {
			writeEngineError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
