// Package broker fans session change notifications out to live readers.
package broker

import (
	"context"
	"sync"
)

// Event tells subscribers that a session changed and why.
type Event struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	Group     int    `json:"group,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

const (
	EventPlayerJoined    = "player_joined"
	EventGroupsFormed    = "groups_formed"
	EventStarted         = "started"
	EventSubmitted       = "submitted"
	EventGroupFinished   = "group_finished"
	EventSessionFinished = "session_finished"
)

// Publisher is what the engine needs to announce committed changes.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Broker is an in-process pub/sub keyed by session ID.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func New() *Broker {
	return &Broker{
		subs: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe returns a channel that receives events for the given session.
func (b *Broker) Subscribe(sessionID string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan Event]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the session's subscribers.
func (b *Broker) Unsubscribe(sessionID string, ch chan Event) {
	b.mu.Lock()
	delete(b.subs[sessionID], ch)
	if len(b.subs[sessionID]) == 0 {
		delete(b.subs, sessionID)
	}
	b.mu.Unlock()
}

// Publish sends an event to all local subscribers of its session.
func (b *Broker) Publish(_ context.Context, ev Event) {
	b.mu.RLock()
	for ch := range b.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			// Drop if subscriber is slow; readers re-fetch full state anyway.
		}
	}
	b.mu.RUnlock()
}

// Subscribers returns the number of live subscribers for a session.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
