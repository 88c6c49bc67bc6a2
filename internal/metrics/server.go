// Package metrics serves Prometheus metrics and a health check over HTTP.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/latoulicious/cozycat/pkg/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// HealthCheck reports a dependency failure, or nil when healthy.
type HealthCheck func(ctx context.Context) error

// Server exposes GET /metrics and GET /healthz.
type Server struct {
	srv    *http.Server
	logger pipeline.Logger
}

// NewRouter builds the HTTP routes. updateGauges runs before every scrape.
func NewRouter(registry *prometheus.Registry, updateGauges func(), checks map[string]HealthCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		metricsHandler.ServeHTTP(w, req)
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": http.StatusText(status),
			"checks": results,
		})
	})
	return r
}

// NewServer creates a server listening on addr.
func NewServer(addr string, handler http.Handler, logger pipeline.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With(pipeline.String("component", "metrics_server")),
	}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Metrics server starting", pipeline.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server error", pipeline.Error(err))
		}
	}()
}

// Shutdown drains connections.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
