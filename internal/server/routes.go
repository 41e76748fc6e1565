package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("GroupQuest API", "/openapi.json", "/docs"))

	r.Post("/api/sessions", handleResolve(logger, deps.Sessions))

	// Player routes. Identity comes from the auth proxy in front of us.
	r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/state", handleState(logger, deps.Sessions))
		r.Get("/events", handleEvents(logger, deps.Sessions, deps.Events))

		r.Group(func(r chi.Router) {
			r.Use(identityMiddleware)
			r.Post("/join", handleJoin(logger, deps.Sessions))
			r.Post("/groups/{group}/submit", handleSubmit(logger, deps.Sessions))
		})
	})

	r.Route("/api/admin/sessions/{sessionID}", func(r chi.Router) {
		r.Use(adminMiddleware(deps.AdminTokenHash))
		r.Post("/groups", handleCommitGrouping(logger, deps.Sessions))
		r.Post("/start", handleCommitStart(logger, deps.Sessions))
	})

	r.Get("/ws/sessions/{sessionID}", handleStateSocket(logger, deps.Sessions, deps.Events))
}
