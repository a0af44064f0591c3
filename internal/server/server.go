// Package server exposes the orchestrator control surface over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mazholin/jobpilot/internal/discovery"
	"github.com/mazholin/jobpilot/internal/orchestrator"
)

// Server wires the control API to one orchestrator instance.
type Server struct {
	port       int
	orch       *orchestrator.Orchestrator
	params     *discovery.SearchParams
	logger     *zap.Logger
	restServer *http.Server
}

func NewServer(port int, orch *orchestrator.Orchestrator, params *discovery.SearchParams, logger *zap.Logger) *Server {
	return &Server{
		port:   port,
		orch:   orch,
		params: params,
		logger: logger,
	}
}

// Start blocks serving the control API until Stop is called.
func (s *Server) Start() error {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	RegisterApi(router, s.orch, s.params, s.logger)

	s.restServer = &http.Server{Addr: fmt.Sprintf("0.0.0.0:%d", s.port), Handler: router}

	s.logger.Info("control api listening", zap.Int("port", s.port))

	err := s.restServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control api server: %w", err)
	}

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	if s.restServer == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.restServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("control api shutdown failed", zap.Error(err))
	}
}
