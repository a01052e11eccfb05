package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/shipmap/internal/core/domain"
	"github.com/artpar/shipmap/internal/engine"
	"github.com/artpar/shipmap/internal/shell/advisor"
	"github.com/artpar/shipmap/internal/shell/api"
	"github.com/artpar/shipmap/internal/shell/report"
	"github.com/artpar/shipmap/internal/shell/scanner"
	"github.com/artpar/shipmap/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitAnalysisError   = 3
	ExitHTTPServerError = 4
)

// =============================================================================
// Engine Wiring
// =============================================================================

// buildEngine wires the analysis engine from configuration.
func buildEngine(cfg *Config, logger *slog.Logger) *engine.Engine {
	var adv advisor.Advisor
	if cfg.Reconcile.Enabled {
		adv = advisor.NewHTTPClient(advisor.HTTPConfig{
			BaseURL: cfg.Reconcile.AdvisorURL,
			APIKey:  cfg.Reconcile.APIKey,
			Timeout: cfg.Reconcile.Timeout,
		})
	}

	return engine.New(engine.Config{
		Scan: scanner.Config{
			ExcludePatterns: cfg.Scan.ExcludePatterns,
			MaxDepth:        cfg.Scan.MaxDepth,
			FollowSymlinks:  cfg.Scan.FollowSymlinks,
		},
		Concurrency:      cfg.Parse.Concurrency,
		ReconcileEnabled: cfg.Reconcile.Enabled,
		ReconcileTimeout: cfg.Reconcile.Timeout,
		BlockOn:          domain.Severity(cfg.Plan.BlockOn),
	}, adv, logger)
}

// =============================================================================
// Server
// =============================================================================

// Server represents the shipmap API server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	s, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	eng := buildEngine(cfg, logger)
	writer := report.NewWriter(cfg.Report.Dir, logger)
	handler := api.NewHandler(s, eng, writer, logger, Version)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		logger:     logger,
	}, nil
}

// Start runs the HTTP server until a shutdown signal or fatal error.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
