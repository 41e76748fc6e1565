// Package groupquest defines the core domain types of the session-lifecycle
// engine: sessions, players, groups and the phases a session moves through.
package groupquest

import (
	"sort"
	"time"
)

type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseGrouping Phase = "grouping"
	PhaseRunning  Phase = "running"
	PhaseDone     Phase = "done"
)

var phaseOrder = map[Phase]int{
	PhaseLobby:    0,
	PhaseGrouping: 1,
	PhaseRunning:  2,
	PhaseDone:     3,
}

// Valid reports whether p is one of the four known phases.
func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// After reports whether p comes strictly later than q in the lifecycle.
func (p Phase) After(q Phase) bool {
	return phaseOrder[p] > phaseOrder[q]
}

type GroupStatus string

const (
	GroupActive GroupStatus = "active"
	GroupDone   GroupStatus = "done"
)

// CodeSlot is the immutable join-code to session mapping.
type CodeSlot struct {
	Code      string    `json:"code"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is the document holding everything that changes together with
// the phase: the roster, the committed group membership and the winner.
type Session struct {
	ID          string            `json:"id"`
	Code        string            `json:"code"`
	Phase       Phase             `json:"phase"`
	CreatedAt   time.Time         `json:"createdAt"`
	LockedAt    *time.Time        `json:"lockedAt,omitempty"`
	StartedAt   *time.Time        `json:"startedAt,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Players     map[string]Player `json:"players"`
	Grouping    *Grouping         `json:"grouping,omitempty"`
	Groups      []GroupMembers    `json:"groups,omitempty"`
	Winner      *Winner           `json:"winner,omitempty"`
}

type Player struct {
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Grouping records the parameters the groups were formed with.
type Grouping struct {
	TargetSize  int               `json:"targetSize"`
	Pins        map[string]string `json:"pins,omitempty"`
	CountdownMs int64             `json:"countdownMs,omitempty"`
	StartsAt    *time.Time        `json:"startsAt,omitempty"`
}

// GroupMembers is the immutable part of a group, written once when the
// session leaves the lobby.
type GroupMembers struct {
	Ordinal int      `json:"ordinal"`
	Members []string `json:"members"`
}

// GroupProgress is the mutable part of a group. It lives in its own
// document so submissions from different groups never contend.
type GroupProgress struct {
	Ordinal         int         `json:"ordinal"`
	Status          GroupStatus `json:"status"`
	Score           *float64    `json:"score,omitempty"`
	Rank            int         `json:"rank,omitempty"`
	FinishedAt      *time.Time  `json:"finishedAt,omitempty"`
	LastSubmittedBy string      `json:"lastSubmittedBy,omitempty"`
	LastSubmittedAt *time.Time  `json:"lastSubmittedAt,omitempty"`
}

// Group is the merged view of membership and progress.
type Group struct {
	Ordinal         int         `json:"ordinal"`
	Members         []string    `json:"members"`
	Status          GroupStatus `json:"status"`
	Score           *float64    `json:"score,omitempty"`
	Rank            int         `json:"rank,omitempty"`
	FinishedAt      *time.Time  `json:"finishedAt,omitempty"`
	LastSubmittedBy string      `json:"lastSubmittedBy,omitempty"`
	LastSubmittedAt *time.Time  `json:"lastSubmittedAt,omitempty"`
}

// MergeGroup combines a group's membership with its progress record. A nil
// progress means the group has not been submitted for yet.
func MergeGroup(m GroupMembers, p *GroupProgress) Group {
	g := Group{Ordinal: m.Ordinal, Members: m.Members, Status: GroupActive}
	if p == nil {
		return g
	}
	if p.Status != "" {
		g.Status = p.Status
	}
	g.Score = p.Score
	g.Rank = p.Rank
	g.FinishedAt = p.FinishedAt
	g.LastSubmittedBy = p.LastSubmittedBy
	g.LastSubmittedAt = p.LastSubmittedAt
	return g
}

type Winner struct {
	Ordinal    int       `json:"ordinal"`
	Members    []string  `json:"members"`
	FinishedAt time.Time `json:"finishedAt"`
}

// GroupingRequest is the operator input for forming groups.
type GroupingRequest struct {
	TargetSize  int               `json:"targetSize"`
	Pins        map[string]string `json:"pins,omitempty"`
	CountdownMs int64             `json:"countdownMs,omitempty"`
}

// State is the read model returned to players and operators.
type State struct {
	SessionID   string     `json:"sessionId"`
	Code        string     `json:"code"`
	Phase       Phase      `json:"phase"`
	CreatedAt   time.Time  `json:"createdAt"`
	LockedAt    *time.Time `json:"lockedAt,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Players     []Player   `json:"players"`
	Groups      []Group    `json:"groups"`
	Grouping    *Grouping  `json:"grouping,omitempty"`
	Winner      *Winner    `json:"winner,omitempty"`
}

// NewSession returns a fresh session in the lobby.
func NewSession(id, code string, now time.Time) Session {
	return Session{
		ID:        id,
		Code:      code,
		Phase:     PhaseLobby,
		CreatedAt: now,
		Players:   map[string]Player{},
	}
}

// PlayerIDs returns the ids of all joined players in join order.
func (s *Session) PlayerIDs() []string {
	players := s.SortedPlayers()
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.UserID
	}
	return ids
}

// SortedPlayers returns the roster ordered by join time, then user id.
func (s *Session) SortedPlayers() []Player {
	players := make([]Player, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].UserID < players[j].UserID
	})
	return players
}

// GroupByOrdinal returns the membership of the group with the given ordinal.
func (s *Session) GroupByOrdinal(ordinal int) (GroupMembers, bool) {
	for _, g := range s.Groups {
		if g.Ordinal == ordinal {
			return g, true
		}
	}
	return GroupMembers{}, false
}
