package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/playperu/groupquest/internal/broker"
	"github.com/playperu/groupquest/internal/groupquest"
	"github.com/playperu/groupquest/internal/store"
)

// SubmitResult reports the group's standing after a submission.
type SubmitResult struct {
	Done    bool    `json:"done"`
	AllDone bool    `json:"allDone"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank,omitempty"`
}

// Submit records a group's score. A score at or above passScore finishes
// the group; once finished, further submissions change nothing and return
// the stored result.
func (e *Engine) Submit(ctx context.Context, sessionID string, ordinal int, submitterID string, score, passScore float64) (res SubmitResult, err error) {
	switch {
	case sessionID == "":
		return res, fmt.Errorf("%w: session id is required", groupquest.ErrInvalidInput)
	case submitterID == "":
		return res, fmt.Errorf("%w: submitter id is required", groupquest.ErrInvalidInput)
	case ordinal < 1:
		return res, fmt.Errorf("%w: group must be a positive ordinal", groupquest.ErrInvalidInput)
	case !finite(score) || !finite(passScore):
		return res, fmt.Errorf("%w: score and pass score must be finite numbers", groupquest.ErrInvalidInput)
	}

	ctx, span := e.startSpan(ctx, "engine.Submit",
		attribute.String("session_id", sessionID),
		attribute.Int("group", ordinal),
	)
	defer func() { endSpan(span, err) }()

	sess, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return res, err
	}
	if !sess.Phase.After(groupquest.PhaseGrouping) {
		return res, fmt.Errorf("%w: session is %s", groupquest.ErrWrongPhase, sess.Phase)
	}
	if _, ok := sess.GroupByOrdinal(ordinal); !ok {
		return res, fmt.Errorf("%w: group %d", groupquest.ErrNotFound, ordinal)
	}

	finished := false
	progress, err := store.Transact(ctx, e.store, groupKey(sessionID, ordinal), func(p *groupquest.GroupProgress, exists bool) error {
		finished = false
		if exists && p.Status == groupquest.GroupDone {
			return store.ErrSkip
		}
		now := e.now()
		p.Ordinal = ordinal
		p.Status = groupquest.GroupActive
		p.Score = &score
		p.LastSubmittedBy = submitterID
		p.LastSubmittedAt = &now
		if score >= passScore {
			p.Status = groupquest.GroupDone
			p.FinishedAt = &now
			finished = true
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("recording submission: %w", err)
	}

	e.publish(ctx, broker.Event{SessionID: sessionID, Type: broker.EventSubmitted, Group: ordinal, UserID: submitterID})
	if finished {
		e.logger.Info("group finished", "session_id", sessionID, "group", ordinal, "score", score)
		e.publish(ctx, broker.Event{SessionID: sessionID, Type: broker.EventGroupFinished, Group: ordinal})
	}

	if progress.Score != nil {
		res.Score = *progress.Score
	}
	if progress.Status != groupquest.GroupDone {
		return res, nil
	}
	res.Done = true

	// Ranking runs after every submit that sees a finished group, so an
	// interrupted earlier run is completed by the next one.
	ranks, allDone, err := e.rank(ctx, sess)
	if err != nil {
		return res, err
	}
	res.Rank = ranks[ordinal]
	res.AllDone = allDone

	if allDone {
		if _, err := e.commitDone(ctx, sessionID); err != nil {
			return res, fmt.Errorf("finishing session: %w", err)
		}
	}
	return res, nil
}

// rank orders every finished group by finish time and writes the resulting
// positions. A rank is only ever raised: the set of finished groups only
// grows, so a stale view can never produce a higher rank than a fresh one.
func (e *Engine) rank(ctx context.Context, sess groupquest.Session) (map[int]int, bool, error) {
	all, err := store.ListJSON[groupquest.GroupProgress](ctx, e.store, groupPrefix(sess.ID))
	if err != nil {
		return nil, false, fmt.Errorf("listing groups: %w", err)
	}

	done := make([]groupquest.GroupProgress, 0, len(all))
	for _, p := range all {
		if p.Status == groupquest.GroupDone && p.FinishedAt != nil {
			done = append(done, p)
		}
	}
	sort.Slice(done, func(i, j int) bool {
		return finishedBefore(done[i], done[j])
	})

	ranks := make(map[int]int, len(done))
	for i, p := range done {
		want := i + 1
		updated, err := store.Transact(ctx, e.store, groupKey(sess.ID, p.Ordinal), func(cur *groupquest.GroupProgress, exists bool) error {
			if !exists || cur.Rank >= want {
				return store.ErrSkip
			}
			cur.Rank = want
			return nil
		})
		if err != nil {
			return nil, false, fmt.Errorf("ranking group %d: %w", p.Ordinal, err)
		}
		ranks[p.Ordinal] = updated.Rank
	}

	if len(done) > 0 {
		if err := e.recordWinner(ctx, sess, done[0]); err != nil {
			return nil, false, err
		}
	}
	return ranks, len(done) == len(sess.Groups), nil
}

func (e *Engine) recordWinner(ctx context.Context, sess groupquest.Session, first groupquest.GroupProgress) error {
	members, _ := sess.GroupByOrdinal(first.Ordinal)
	candidate := groupquest.Winner{
		Ordinal:    first.Ordinal,
		Members:    members.Members,
		FinishedAt: *first.FinishedAt,
	}

	_, err := store.Transact(ctx, e.store, sessionKey(sess.ID), func(s *groupquest.Session, exists bool) error {
		if !exists {
			return fmt.Errorf("%w: session %s", groupquest.ErrNotFound, sess.ID)
		}
		if w := s.Winner; w != nil && !winnerBefore(candidate, *w) {
			return store.ErrSkip
		}
		s.Winner = &candidate
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording winner: %w", err)
	}
	return nil
}

func (e *Engine) loadSession(ctx context.Context, sessionID string) (groupquest.Session, error) {
	sess, err := store.GetJSON[groupquest.Session](ctx, e.store, sessionKey(sessionID))
	if errors.Is(err, store.ErrNotFound) {
		return sess, fmt.Errorf("%w: session %s", groupquest.ErrNotFound, sessionID)
	}
	if err != nil {
		return sess, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if !sess.Phase.Valid() {
		return sess, fmt.Errorf("session %s has unknown phase %q", sessionID, sess.Phase)
	}
	return sess, nil
}

func finishedBefore(a, b groupquest.GroupProgress) bool {
	if !a.FinishedAt.Equal(*b.FinishedAt) {
		return a.FinishedAt.Before(*b.FinishedAt)
	}
	return a.Ordinal < b.Ordinal
}

func winnerBefore(a, b groupquest.Winner) bool {
	if !a.FinishedAt.Equal(b.FinishedAt) {
		return a.FinishedAt.Before(b.FinishedAt)
	}
	return a.Ordinal < b.Ordinal
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
