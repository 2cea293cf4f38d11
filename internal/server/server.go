// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/xdeploy/internal/auth"
	"github.com/pendergraft/xdeploy/internal/config"
	"github.com/pendergraft/xdeploy/internal/middleware/logging"
	"github.com/pendergraft/xdeploy/internal/middleware/ratelimit"
	"github.com/pendergraft/xdeploy/internal/observability/metrics"
	runsTransport "github.com/pendergraft/xdeploy/internal/runs/transport"
)

// Store is what the server needs from storage
type Store interface {
	runsTransport.Service
	Ping(ctx context.Context) error
}

// Server is the HTTP server for run history
type Server struct {
	cfg    *config.Config
	store  Store
	logger *slog.Logger
	router *chi.Mux

	stopLimiter func()
}

// New creates a new server
func New(cfg *config.Config, store Store, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: logger,
		router: chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases background resources
func (s *Server) Close() {
	if s.stopLimiter != nil {
		s.stopLimiter()
	}
}

func (s *Server) setupMiddleware() {
	// Order matters: the client IP must be resolved before logging and limiting
	if s.cfg.Server.TrustProxy {
		s.router.Use(middleware.RealIP)
	}

	limiter, stop := ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.Server.RateLimit.Enabled,
		RequestsPerMin: s.cfg.Server.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.Server.RateLimit.BurstSize,
	})
	s.stopLimiter = stop

	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(limiter)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second))
	}
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors)
}

func (s *Server) setupRoutes() {
	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)

	if s.cfg.Metrics.Enabled {
		s.router.Handle("/metrics", metrics.Handler())
	}

	runsHandler := runsTransport.NewHandler(s.store)

	// API v1 routes, read only
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(auth.NewKeys(s.cfg.Server.APIKeys...), writeError))
		r.Route("/runs", runsHandler.RegisterRoutes)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness requires a reachable store
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListenAndServe serves handler on addr until ctx is done, then shuts down
// gracefully
func ListenAndServe(ctx context.Context, cfg config.ServerConfig, addr string, handler http.Handler, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down", "addr", httpServer.Addr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	logger.Info("server stopped", "addr", httpServer.Addr)
	return nil
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
