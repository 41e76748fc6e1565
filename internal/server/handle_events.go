package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// handleEvents streams the full session state as SSE, once on connect and
// again after every change.
func handleEvents(logger *slog.Logger, sessions Sessions, events Subscriber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		// Subscribe before the first read so no change can fall between
		// the snapshot and the stream.
		ch := events.Subscribe(sessionID)
		defer events.Unsubscribe(sessionID, ch)

		st, err := sessions.State(r.Context(), sessionID)
		if err != nil {
			writeEngineError(w, logger, err)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		send := func(v any) bool {
			data, err := json.Marshal(v)
			if err != nil {
				logger.Error("encoding state", "session_id", sessionID, "error", err)
				return false
			}
			fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
			flusher.Flush()
			return true
		}
		if !send(st) {
			return
		}

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ch:
				st, err := sessions.State(r.Context(), sessionID)
				if err != nil {
					logger.Debug("reloading state", "session_id", sessionID, "error", err)
					return
				}
				if !send(st) {
					return
				}
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}
