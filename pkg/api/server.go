package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/s3lite/s3lite/internal/logger"
	"github.com/s3lite/s3lite/pkg/config"
	"github.com/s3lite/s3lite/pkg/contoken"
	"github.com/s3lite/s3lite/pkg/metrics"
	"github.com/s3lite/s3lite/pkg/registry"
)

// Server is the S3 REST gateway's HTTP front end.
type Server struct {
	server       *http.Server
	cfg          *config.Config
	shutdownOnce sync.Once
}

// NewServer wires the bucket registry, continuation-token store and metrics
// sink into a router and wraps it in an http.Server. The server is created
// in a stopped state; call Start to begin serving requests.
func NewServer(cfg *config.Config, reg *registry.Registry, tokens *contoken.Store, m metrics.S3Metrics) *Server {
	router := NewRouter(cfg, reg, tokens, m)

	return &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler: router,
		},
		cfg: cfg,
	}
}

// Start runs the HTTP server until ctx is cancelled, then drains in-flight
// connections for up to cfg.ShutdownTimeout before returning.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("s3 server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("s3 server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("s3 server failed: %w", err)
	}
}

// Stop is idempotent and safe to call concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("s3 server shutdown initiated")
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("s3 server shutdown error: %w", err)
			logger.Error("s3 server shutdown error", "error", err)
		} else {
			logger.Info("s3 server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.cfg.Port
}
