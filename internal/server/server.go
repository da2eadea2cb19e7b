// Package server hosts the HTTP surface and tracks shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/dthul/discord-bot/internal/config"
)

// Server wraps http.Server with a shutdown flag that handlers consult
// before starting new user-facing work.
type Server struct {
	cfg          config.ServerConfig
	logger       *slog.Logger
	http         *http.Server
	shuttingDown atomic.Bool
}

// New constructs a Server. handler is built by the caller, usually with the
// server's ShuttingDown method wired in.
func New(cfg config.ServerConfig, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		http: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Port),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// SetHandler sets the root handler. It must be called before Start.
func (s *Server) SetHandler(handler http.Handler) {
	s.http.Handler = handler
}

// ShuttingDown reports whether Shutdown has been called.
func (s *Server) ShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Shutdown flags the server as shutting down and gracefully terminates it.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down server")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
