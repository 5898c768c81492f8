package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	handler "github.com/newthinker/quantbench/internal/api/handler/api"
	"github.com/newthinker/quantbench/internal/api/job"
	"github.com/newthinker/quantbench/internal/api/middleware"
	"github.com/newthinker/quantbench/internal/app"
	"github.com/newthinker/quantbench/internal/config"
	"github.com/newthinker/quantbench/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server for quantbench
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
}

// NewServer creates a new HTTP server. reg may be nil to disable /metrics.
func NewServer(cfg *config.Config, a *app.App, reg *metrics.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	var h http.Handler = mux
	if reg != nil {
		h = metrics.HTTPMiddleware(reg)(h)
	}
	h = metrics.LoggingMiddleware(logger)(h)

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		mux:    mux,
	}

	s.setupRoutes(cfg, a, reg)
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg *config.Config, a *app.App, reg *metrics.Registry) {
	jobs := job.NewStore(cfg.Server.MaxJobs, time.Duration(cfg.Server.JobTTLHours)*time.Hour)
	backtests := handler.NewBacktestHandler(jobs, a, cfg.Output.WorkDir, reg, s.logger)
	history := handler.NewRunsHandler(a)

	auth := middleware.APIKeyAuth(cfg.Server.APIKey)
	protect := func(pattern string, fn http.HandlerFunc) {
		s.mux.Handle(pattern, auth(fn))
	}

	protect("POST /api/v1/backtests", backtests.Create)
	protect("GET /api/v1/backtests/jobs", backtests.ListJobs)
	protect("GET /api/v1/backtests/jobs/{id}", backtests.GetStatus)
	protect("GET /api/v1/backtests", history.List)
	protect("GET /api/v1/backtests/{id}", history.Get)

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	if reg != nil && cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.mux.Handle("GET "+path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
}

// Handler returns the root handler, middleware included
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
