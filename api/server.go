// Package api exposes the host's preference stores, bus and metrics over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/CreativeUnicorns/leafprefs"
	"github.com/CreativeUnicorns/leafprefs/host"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	manager        *leafprefs.Manager
	logger         leafprefs.Logger
	hub            http.Handler
	metrics        *host.Metrics
	publishOnWrite bool
	router         *chi.Mux
	httpServer     *http.Server
}

// Config holds configuration for the API server.
type Config struct {
	ListenAddress string
	Manager       *leafprefs.Manager
	Logger        leafprefs.Logger
	// Hub is mounted at /api/v1/bus when set.
	Hub http.Handler
	// Metrics is served at /metrics when set.
	Metrics *host.Metrics
	// PublishOnWrite publishes every written value on its key channel. A
	// ChangeRelay on the same bus skips the store edit it causes.
	PublishOnWrite bool
}

// NewServer creates and configures a new API server instance.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("manager is required")
	}
	if cfg.Manager.Storage() == nil {
		return nil, fmt.Errorf("manager has no storage: %w", leafprefs.ErrStorageUnavailable)
	}
	if cfg.Logger == nil {
		cfg.Logger = cfg.Manager.Logger()
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}

	s := &Server{
		manager:        cfg.Manager,
		logger:         cfg.Logger,
		hub:            cfg.Hub,
		metrics:        cfg.Metrics,
		publishOnWrite: cfg.PublishOnWrite,
		router:         chi.NewRouter(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: s.router,
		// WebSocket connections clear these deadlines when hijacked.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server and blocks until it is shut down or fails.
// A graceful shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("API server starting", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("could not start server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("API server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("API server stopped gracefully")
	return nil
}
