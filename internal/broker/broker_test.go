package broker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func recvEvent(t *testing.T, ch <-chan Event, within time.Duration) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(within):
		t.Fatalf("timed out waiting for event")
		return Event{}
	}
}

func TestBrokerDeliversPerSession(t *testing.T) {
	b := New()
	a := b.Subscribe("s1")
	other := b.Subscribe("s2")
	defer b.Unsubscribe("s1", a)
	defer b.Unsubscribe("s2", other)

	b.Publish(context.Background(), Event{SessionID: "s1", Type: EventPlayerJoined, UserID: "u1"})

	ev := recvEvent(t, a, 100*time.Millisecond)
	if ev.Type != EventPlayerJoined || ev.UserID != "u1" {
		t.Errorf("got %+v", ev)
	}
	select {
	case ev := <-other:
		t.Fatalf("s2 subscriber received %+v", ev)
	default:
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := New()
	ch := b.Subscribe("s1")
	if n := b.Subscribers("s1"); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}
	b.Unsubscribe("s1", ch)
	if n := b.Subscribers("s1"); n != 0 {
		t.Fatalf("subscribers = %d, want 0", n)
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := New()
	ch := b.Subscribe("s1")
	for i := 0; i < 100; i++ {
		b.Publish(context.Background(), Event{SessionID: "s1", Type: EventSubmitted})
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered %d, want %d", len(ch), cap(ch))
	}
}

func TestRedisBrokerRelays(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := NewRedisBroker(rdb, "events:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ch := b.Subscribe("s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	// Publish until the relay's subscription is live.
	deadline := time.After(2 * time.Second)
	for {
		b.Publish(ctx, Event{SessionID: "s1", Type: EventStarted})
		select {
		case ev := <-ch:
			if ev.Type != EventStarted {
				t.Fatalf("got %+v", ev)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("run: %v", err)
			}
			return
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("timed out waiting for relayed event")
		}
	}
}
