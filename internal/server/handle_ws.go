package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// handleStateSocket pushes the same state snapshots over a websocket.
// Messages from the client are ignored.
func handleStateSocket(logger *slog.Logger, sessions Sessions, events Subscriber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		ch := events.Subscribe(sessionID)
		defer events.Unsubscribe(sessionID, ch)

		st, err := sessions.State(r.Context(), sessionID)
		if err != nil {
			writeEngineError(w, logger, err)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		// CloseRead cancels ctx when the client goes away.
		ctx := conn.CloseRead(r.Context())

		if err := writeSnapshot(ctx, conn, st); err != nil {
			logger.Debug("websocket write failed", "error", err)
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				st, err := sessions.State(ctx, sessionID)
				if err != nil {
					logger.Debug("reloading state", "session_id", sessionID, "error", err)
					conn.Close(websocket.StatusInternalError, "state unavailable")
					return
				}
				if err := writeSnapshot(ctx, conn, st); err != nil {
					logger.Debug("websocket write failed", "error", err)
					return
				}
			}
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
