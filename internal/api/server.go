package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/mediasink/internal/config"
	"github.com/snarg/mediasink/internal/dlq"
	"github.com/snarg/mediasink/internal/metrics"
	"github.com/snarg/mediasink/internal/queue"
	"github.com/snarg/mediasink/internal/registry"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, q *queue.BoundedQueue, reg *registry.Registry, dl *dlq.Store, version string, startTime time.Time, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)

	// Health and metrics, no auth
	health := NewHealthHandler(q, version, startTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Producer-facing endpoints
	upload := NewUploadHandler(q, reg)
	r.Post("/api/v1/upload", upload.ServeHTTP)
	r.Get("/api/v1/queue/status", NewStatusHandler(q).ServeHTTP)

	// Administrative endpoints
	admin := NewAdminHandler(q, reg, dl, log)
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Get("/api/v1/dlq", admin.ListDLQ)
		r.Post("/api/v1/dlq/{id}/requeue", admin.RequeueDLQ)
		r.Delete("/api/v1/dlq/{id}", admin.DeleteDLQ)
		r.Delete("/api/v1/dlq", admin.ClearDLQ)
		r.Get("/api/v1/registry", admin.ListRegistry)
		r.Post("/api/v1/registry/sweep", admin.SweepRegistry)
		r.Delete("/api/v1/registry", admin.ClearRegistry)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
