package api

import (
	"net/http"
	"time"

	"stock-analyst/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the public account routes, the bearer-protected analyst routes and /metrics
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RealIP,
		middleware.RequestID,
		RunIDMiddleware,
		RequestLogMiddleware,
		middleware.Recoverer,
		CORSMiddleware(cfg.HTTP.CORSAllowedOrigins),
		MetricsMiddleware,
	)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Post("/register", h.HandleRegister)
		r.Post("/login", h.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.app.Tokens()))
			r.Get("/runs", h.HandleGetRuns)
			r.Delete("/user", h.HandleDeleteUser)

			// the workflow carries its own deadline; the HTTP one adds a margin for charts
			r.With(middleware.Timeout(time.Duration(cfg.Workflow.TimeoutSeconds+30) * time.Second)).
				Post("/query", h.HandleQuery)
		})
	})

	return r
}
