package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/playperu/groupquest/internal/broker"
	"github.com/playperu/groupquest/internal/engine"
	"github.com/playperu/groupquest/internal/groupquest"
)

// Sessions is the part of the engine the HTTP layer drives.
type Sessions interface {
	Resolve(ctx context.Context, code string) (groupquest.CodeSlot, error)
	Join(ctx context.Context, sessionID, userID, name string) error
	CommitGrouping(ctx context.Context, sessionID string, req groupquest.GroupingRequest) (groupquest.Session, error)
	CommitStart(ctx context.Context, sessionID string) (groupquest.Session, error)
	Submit(ctx context.Context, sessionID string, ordinal int, submitterID string, score, passScore float64) (engine.SubmitResult, error)
	State(ctx context.Context, sessionID string) (groupquest.State, error)
}

// Subscriber delivers session change notifications to streaming clients.
type Subscriber interface {
	Subscribe(sessionID string) chan broker.Event
	Unsubscribe(sessionID string, ch chan broker.Event)
}

type Deps struct {
	Sessions Sessions
	Events   Subscriber
	// AdminTokenHash is the bcrypt hash admin requests must match. Empty
	// leaves admin routes open.
	AdminTokenHash string
}

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// New builds the HTTP server. mount, when non-nil, adds routes owned by
// other packages such as health checks.
func New(addr string, logger *slog.Logger, deps Deps, mount func(chi.Router)) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           newRouter(logger, deps, mount),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

func newRouter(logger *slog.Logger, deps Deps, mount func(chi.Router)) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(logger))
	r.Use(middleware.Recoverer)

	if mount != nil {
		mount(r)
	}
	addRoutes(r, logger, deps)
	return r
}

func (s *Server) Run(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
