package server

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/researchq/internal/api"
	"github.com/cloo-solutions/researchq/internal/api/handlers"
	"github.com/cloo-solutions/researchq/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	Teams           middleware.TeamLookup
	ResearchHandler *handlers.ResearchHandler
	// HealthCheck reports dependency health. Nil always reports ok.
	HealthCheck func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.HealthCheck != nil {
			if err := cfg.HealthCheck(r.Context()); err != nil {
				api.Success(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/research", func(r chi.Router) {
		r.Use(middleware.TeamScope(cfg.Teams))

		r.Post("/", cfg.ResearchHandler.Submit)
		r.Post("/process", cfg.ResearchHandler.Process)
		r.Get("/requests/{id}", cfg.ResearchHandler.Status)
		r.Get("/records", cfg.ResearchHandler.ListHistory)
		r.Get("/records/{id}", cfg.ResearchHandler.GetRecord)
		r.Get("/records/{id}/export", cfg.ResearchHandler.Export)
	})

	return r
}
