package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisBroker relays events between server instances over redis pub/sub.
// Publish goes to redis only; Run delivers everything received from redis,
// including this instance's own events, to the embedded local Broker.
type RedisBroker struct {
	*Broker
	rdb    *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisBroker(rdb *redis.Client, prefix string, logger *slog.Logger) *RedisBroker {
	return &RedisBroker{Broker: New(), rdb: rdb, prefix: prefix, logger: logger}
}

func (b *RedisBroker) channel(sessionID string) string { return b.prefix + sessionID }

func (b *RedisBroker) Publish(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("encoding event", "error", err)
		return
	}
	if err := b.rdb.Publish(ctx, b.channel(ev.SessionID), data).Err(); err != nil {
		b.logger.Warn("publishing event", "session_id", ev.SessionID, "error", err)
	}
}

// Run relays redis messages to local subscribers until ctx is done.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.rdb.PSubscribe(ctx, b.prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	msgs := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("dropping malformed event", "channel", msg.Channel, "error", err)
				continue
			}
			if ev.SessionID == "" {
				ev.SessionID = strings.TrimPrefix(msg.Channel, b.prefix)
			}
			b.Broker.Publish(ctx, ev)
		}
	}
}
