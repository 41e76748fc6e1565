package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/playperu/groupquest/internal/broker"
	"github.com/playperu/groupquest/internal/groupquest"
	"github.com/playperu/groupquest/internal/store"
)

// Join adds a player to the session's lobby. Joining twice is a no-op and
// keeps the original join time. Once groups have been formed every join is
// refused with ErrLocked.
func (e *Engine) Join(ctx context.Context, sessionID, userID, name string) (err error) {
	name = groupquest.NormalizeName(name, e.limits.MaxNameLength)
	switch {
	case sessionID == "":
		return fmt.Errorf("%w: session id is required", groupquest.ErrInvalidInput)
	case userID == "":
		return fmt.Errorf("%w: user id is required", groupquest.ErrInvalidInput)
	case name == "":
		return fmt.Errorf("%w: name is required", groupquest.ErrInvalidInput)
	}

	ctx, span := e.startSpan(ctx, "engine.Join",
		attribute.String("session_id", sessionID),
		attribute.String("user_id", userID),
	)
	defer func() { endSpan(span, err) }()

	now := e.now()
	added := false
	_, err = store.Transact(ctx, e.store, sessionKey(sessionID), func(s *groupquest.Session, exists bool) error {
		added = false
		if !exists {
			return fmt.Errorf("%w: session %s", groupquest.ErrNotFound, sessionID)
		}
		if s.Phase != groupquest.PhaseLobby {
			return fmt.Errorf("%w: session is %s", groupquest.ErrLocked, s.Phase)
		}
		if _, ok := s.Players[userID]; ok {
			return store.ErrSkip
		}
		if s.Players == nil {
			s.Players = map[string]groupquest.Player{}
		}
		s.Players[userID] = groupquest.Player{UserID: userID, Name: name, JoinedAt: now}
		added = true
		return nil
	})
	if err != nil {
		return err
	}

	if added {
		e.logger.Debug("player joined", "session_id", sessionID, "user_id", userID)
		e.publish(ctx, broker.Event{SessionID: sessionID, Type: broker.EventPlayerJoined, UserID: userID})
	}
	return nil
}
