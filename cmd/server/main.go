package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/groupquest/internal/broker"
	"github.com/playperu/groupquest/internal/config"
	"github.com/playperu/groupquest/internal/database"
	"github.com/playperu/groupquest/internal/engine"
	"github.com/playperu/groupquest/internal/handler/health"
	"github.com/playperu/groupquest/internal/migrations"
	"github.com/playperu/groupquest/internal/server"
	"github.com/playperu/groupquest/internal/store"
	"github.com/playperu/groupquest/internal/telemetry"
)

const serviceName = "groupquest"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	g, gctx := errgroup.WithContext(ctx)

	// --- Store + broker ---
	var (
		st     store.Store
		events interface {
			server.Subscriber
			broker.Publisher
		}
		checks = map[string]health.Checker{}
	)
	switch cfg.StoreBackend {
	case "memory":
		st = store.NewMemoryStore(cfg.TxMaxRetries)
		events = broker.New()
		logger.Warn("using in-memory store; state is lost on restart")

	case "sqlite":
		db, err := database.Open(ctx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("connecting to sqlite: %w", err)
		}
		if err := migrations.Run(ctx, db); err != nil {
			db.Close()
			return fmt.Errorf("running migrations: %w", err)
		}
		docs := store.NewDocStore(db, cfg.TxMaxRetries)
		st = docs
		events = broker.New()
		checks["sqlite"] = health.CheckFunc(docs.Ping)
		logger.Info("connected to sqlite", "path", cfg.DBPath)

	case "redis":
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		docs := store.NewRedisStore(rdb, serviceName, cfg.TxMaxRetries)
		st = docs

		// Sessions are shared across instances, so change notifications
		// must be too.
		rb := broker.NewRedisBroker(rdb, serviceName+":events:", logger)
		events = rb
		g.Go(func() error { return rb.Run(gctx) })

		checks["redis"] = health.CheckFunc(docs.Ping)
		logger.Info("connected to redis")
	}
	defer st.Close()

	eng := engine.New(st, events, logger, engine.Limits{
		MaxGroupSize:  cfg.MaxGroupSize,
		MinCountdown:  cfg.MinCountdown,
		MaxCountdown:  cfg.MaxCountdown,
		MaxCodeLength: cfg.MaxCodeLength,
		MaxNameLength: cfg.MaxNameLength,
	})

	if cfg.AdminTokenHash == "" {
		logger.Warn("ADMIN_TOKEN_HASH not set; admin routes are unauthenticated")
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Sessions:       eng,
		Events:         events,
		AdminTokenHash: cfg.AdminTokenHash,
	}, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, checks).Routes())
	})

	// --- Run ---
	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
