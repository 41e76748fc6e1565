// Package engine runs the session lifecycle: join-code resolution, the
// lobby, group formation, the phase state machine and team scoring.
//
// The engine keeps no state of its own. Every mutation that needs
// exactly-once or monotonic behaviour is a single optimistic transaction on
// one store document: the code slot, the session, or one group's progress.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/playperu/groupquest/internal/broker"
	"github.com/playperu/groupquest/internal/partition"
	"github.com/playperu/groupquest/internal/store"
)

// Limits holds the bounds an operator may tune.
type Limits struct {
	MaxGroupSize  int
	MinCountdown  time.Duration
	MaxCountdown  time.Duration
	MaxCodeLength int
	MaxNameLength int
}

type Engine struct {
	store   store.Store
	pub     broker.Publisher
	logger  *slog.Logger
	limits  Limits
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
	newRand func() *rand.Rand
}

type Option func(*Engine)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDs replaces the session ID generator.
func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithRand replaces the shuffle source used when forming groups.
func WithRand(newRand func() *rand.Rand) Option {
	return func(e *Engine) { e.newRand = newRand }
}

func New(s store.Store, pub broker.Publisher, logger *slog.Logger, limits Limits, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		pub:     pub,
		logger:  logger,
		limits:  limits,
		tracer:  otel.Tracer("github.com/playperu/groupquest/internal/engine"),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		newRand: partition.NewRand,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func codeKey(code string) string          { return "code/" + code }
func sessionKey(id string) string         { return "session/" + id }
func groupPrefix(sessionID string) string { return "group/" + sessionID + "/" }

func groupKey(sessionID string, ordinal int) string {
	return fmt.Sprintf("group/%s/%04d", sessionID, ordinal)
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *Engine) publish(ctx context.Context, ev broker.Event) {
	if e.pub != nil {
		e.pub.Publish(ctx, ev)
	}
}
