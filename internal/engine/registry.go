package engine

import (
	"context"
	"fmt"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/playperu/groupquest/internal/groupquest"
	"github.com/playperu/groupquest/internal/store"
)

// Resolve maps a join code to its session, creating the session the first
// time the code is used. Concurrent callers with the same code all get the
// same session ID and exactly one session is created.
func (e *Engine) Resolve(ctx context.Context, rawCode string) (slot groupquest.CodeSlot, err error) {
	code := groupquest.NormalizeCode(rawCode)
	if code == "" {
		return slot, fmt.Errorf("%w: code is required", groupquest.ErrInvalidInput)
	}
	if limit := e.limits.MaxCodeLength; limit > 0 && utf8.RuneCountInString(code) > limit {
		return slot, fmt.Errorf("%w: code must be at most %d characters", groupquest.ErrInvalidInput, limit)
	}

	ctx, span := e.startSpan(ctx, "engine.Resolve", attribute.String("code", code))
	defer func() { endSpan(span, err) }()

	candidate := e.newID()
	now := e.now()

	// First writer wins the slot; everyone else reads the winner's ID.
	slot, err = store.Transact(ctx, e.store, codeKey(code), func(s *groupquest.CodeSlot, exists bool) error {
		if exists {
			return store.ErrSkip
		}
		*s = groupquest.CodeSlot{Code: code, SessionID: candidate, CreatedAt: now}
		return nil
	})
	if err != nil {
		return slot, fmt.Errorf("claiming code %s: %w", code, err)
	}

	// Every caller makes sure the session exists before handing out its ID,
	// so no reader can observe the mapping without the session.
	created := false
	_, err = store.Transact(ctx, e.store, sessionKey(slot.SessionID), func(s *groupquest.Session, exists bool) error {
		if exists {
			created = false
			return store.ErrSkip
		}
		*s = groupquest.NewSession(slot.SessionID, code, slot.CreatedAt)
		created = true
		return nil
	})
	if err != nil {
		return slot, fmt.Errorf("creating session %s: %w", slot.SessionID, err)
	}
	if created {
		e.logger.Info("session created", "session_id", slot.SessionID, "code", code)
	}
	return slot, nil
}
