package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/playperu/groupquest/internal/groupquest"
	"github.com/playperu/groupquest/internal/store"
)

// State merges the session document with the per-group progress records.
// Groups without a progress record are active and unscored.
func (e *Engine) State(ctx context.Context, sessionID string) (groupquest.State, error) {
	if sessionID == "" {
		return groupquest.State{}, fmt.Errorf("%w: session id is required", groupquest.ErrInvalidInput)
	}

	sess, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return groupquest.State{}, err
	}

	progress := map[int]groupquest.GroupProgress{}
	if len(sess.Groups) > 0 {
		all, err := store.ListJSON[groupquest.GroupProgress](ctx, e.store, groupPrefix(sessionID))
		if err != nil {
			return groupquest.State{}, fmt.Errorf("listing groups: %w", err)
		}
		for _, p := range all {
			progress[p.Ordinal] = p
		}
	}

	groups := make([]groupquest.Group, 0, len(sess.Groups))
	for _, m := range sess.Groups {
		var p *groupquest.GroupProgress
		if rec, ok := progress[m.Ordinal]; ok {
			p = &rec
		}
		groups = append(groups, groupquest.MergeGroup(m, p))
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Ordinal < groups[j].Ordinal })

	return groupquest.State{
		SessionID:   sess.ID,
		Code:        sess.Code,
		Phase:       sess.Phase,
		CreatedAt:   sess.CreatedAt,
		LockedAt:    sess.LockedAt,
		StartedAt:   sess.StartedAt,
		CompletedAt: sess.CompletedAt,
		Players:     sess.SortedPlayers(),
		Groups:      groups,
		Grouping:    sess.Grouping,
		Winner:      sess.Winner,
	}, nil
}
