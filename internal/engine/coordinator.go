package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/playperu/groupquest/internal/broker"
	"github.com/playperu/groupquest/internal/groupquest"
	"github.com/playperu/groupquest/internal/partition"
	"github.com/playperu/groupquest/internal/store"
)

// CommitGrouping closes the lobby and forms groups in one transaction. The
// roster is read from the same snapshot the phase guard is checked against,
// so a player either made it into a group or was refused by Join.
func (e *Engine) CommitGrouping(ctx context.Context, sessionID string, req groupquest.GroupingRequest) (sess groupquest.Session, err error) {
	if sessionID == "" {
		return sess, fmt.Errorf("%w: session id is required", groupquest.ErrInvalidInput)
	}
	if err := e.validateGrouping(&req); err != nil {
		return sess, err
	}

	ctx, span := e.startSpan(ctx, "engine.CommitGrouping",
		attribute.String("session_id", sessionID),
		attribute.Int("target_size", req.TargetSize),
		attribute.Int("pins", len(req.Pins)),
	)
	defer func() { endSpan(span, err) }()

	now := e.now()
	opts := partition.Options{MaxGroupSize: e.limits.MaxGroupSize}

	sess, err = store.Transact(ctx, e.store, sessionKey(sessionID), func(s *groupquest.Session, exists bool) error {
		if !exists {
			return fmt.Errorf("%w: session %s", groupquest.ErrNotFound, sessionID)
		}
		if s.Phase.After(groupquest.PhaseLobby) {
			return fmt.Errorf("%w: session is already %s", groupquest.ErrAlreadyAdvanced, s.Phase)
		}

		groups, err := partition.Partition(s.PlayerIDs(), req.TargetSize, req.Pins, e.newRand(), opts)
		if err != nil {
			return err
		}

		grouping := &groupquest.Grouping{
			TargetSize:  req.TargetSize,
			Pins:        req.Pins,
			CountdownMs: req.CountdownMs,
		}
		if req.CountdownMs > 0 {
			startsAt := now.Add(time.Duration(req.CountdownMs) * time.Millisecond)
			grouping.StartsAt = &startsAt
		}

		s.Phase = groupquest.PhaseGrouping
		s.LockedAt = &now
		s.Grouping = grouping
		s.Groups = make([]groupquest.GroupMembers, len(groups))
		for i, members := range groups {
			s.Groups[i] = groupquest.GroupMembers{Ordinal: i + 1, Members: members}
		}
		return nil
	})
	if err != nil {
		e.logger.Debug("grouping refused", "session_id", sessionID, "error", err)
		return sess, err
	}

	e.logger.Info("groups formed",
		"session_id", sessionID,
		"players", len(sess.Players),
		"groups", len(sess.Groups),
		"target_size", req.TargetSize,
	)
	e.publish(ctx, broker.Event{SessionID: sessionID, Type: broker.EventGroupsFormed})
	return sess, nil
}

func (e *Engine) validateGrouping(req *groupquest.GroupingRequest) error {
	if req.TargetSize < partition.MinGroupSize {
		return fmt.Errorf("%w: target size must be at least %d", groupquest.ErrInvalidInput, partition.MinGroupSize)
	}
	if limit := e.limits.MaxGroupSize; limit > 0 && req.TargetSize > limit {
		return fmt.Errorf("%w: target size must be at most %d", groupquest.ErrInvalidInput, limit)
	}

	if req.CountdownMs < 0 {
		return fmt.Errorf("%w: countdown must not be negative", groupquest.ErrInvalidInput)
	}
	if req.CountdownMs > 0 {
		d := time.Duration(req.CountdownMs) * time.Millisecond
		if d < e.limits.MinCountdown || (e.limits.MaxCountdown > 0 && d > e.limits.MaxCountdown) {
			return fmt.Errorf("%w: countdown must be between %s and %s",
				groupquest.ErrInvalidInput, e.limits.MinCountdown, e.limits.MaxCountdown)
		}
	}

	pins := make(map[string]string, len(req.Pins))
	for user, label := range req.Pins {
		user, label = strings.TrimSpace(user), strings.TrimSpace(label)
		if user != "" && label != "" {
			pins[user] = label
		}
	}
	req.Pins = pins
	if len(pins) == 0 {
		req.Pins = nil
	}
	return nil
}

// CommitStart moves a grouped session into play.
func (e *Engine) CommitStart(ctx context.Context, sessionID string) (sess groupquest.Session, err error) {
	if sessionID == "" {
		return sess, fmt.Errorf("%w: session id is required", groupquest.ErrInvalidInput)
	}

	ctx, span := e.startSpan(ctx, "engine.CommitStart", attribute.String("session_id", sessionID))
	defer func() { endSpan(span, err) }()

	now := e.now()
	sess, err = store.Transact(ctx, e.store, sessionKey(sessionID), func(s *groupquest.Session, exists bool) error {
		if !exists {
			return fmt.Errorf("%w: session %s", groupquest.ErrNotFound, sessionID)
		}
		switch {
		case s.Phase.After(groupquest.PhaseGrouping):
			return fmt.Errorf("%w: session is already %s", groupquest.ErrAlreadyAdvanced, s.Phase)
		case s.Phase != groupquest.PhaseGrouping:
			return fmt.Errorf("%w: groups have not been formed", groupquest.ErrWrongPhase)
		case len(s.Players) < partition.MinGroupSize:
			return fmt.Errorf("%w: need at least %d players", groupquest.ErrWrongPhase, partition.MinGroupSize)
		case len(s.Groups) == 0:
			return fmt.Errorf("%w: no groups formed", groupquest.ErrWrongPhase)
		}
		s.Phase = groupquest.PhaseRunning
		s.StartedAt = &now
		return nil
	})
	if err != nil {
		e.logger.Debug("start refused", "session_id", sessionID, "error", err)
		return sess, err
	}

	e.logger.Info("session started", "session_id", sessionID, "groups", len(sess.Groups))
	e.publish(ctx, broker.Event{SessionID: sessionID, Type: broker.EventStarted})
	return sess, nil
}

// commitDone finishes a running session. It reports whether this call made
// the transition; a session that is already done is left alone.
func (e *Engine) commitDone(ctx context.Context, sessionID string) (bool, error) {
	now := e.now()
	flipped := false
	_, err := store.Transact(ctx, e.store, sessionKey(sessionID), func(s *groupquest.Session, exists bool) error {
		flipped = false
		if !exists {
			return fmt.Errorf("%w: session %s", groupquest.ErrNotFound, sessionID)
		}
		if s.Phase == groupquest.PhaseDone {
			return store.ErrSkip
		}
		if s.Phase != groupquest.PhaseRunning {
			return fmt.Errorf("%w: session is %s", groupquest.ErrWrongPhase, s.Phase)
		}
		s.Phase = groupquest.PhaseDone
		s.CompletedAt = &now
		flipped = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if flipped {
		e.logger.Info("session finished", "session_id", sessionID)
		e.publish(ctx, broker.Event{SessionID: sessionID, Type: broker.EventSessionFinished})
	}
	return flipped, nil
}
