// Package http provides the operational HTTP surface: health probes and
// Prometheus metrics. Business commands enter through the entity runtime,
// not through this server.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tillworks/opsledger/internal/adapter/http/handler"
	"github.com/tillworks/opsledger/internal/adapter/http/middleware"
)

// RouterConfig holds dependencies for the ops router.
type RouterConfig struct {
	HealthHandler *handler.HealthHandler
	Logger        zerolog.Logger
}

// NewRouter creates the ops HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))

	r.Get("/healthz", cfg.HealthHandler.Liveness)
	r.Get("/readyz", cfg.HealthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
