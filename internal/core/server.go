// Package core provides the API chassis for the Vega billing and access
// service. It builds a chi router and enforces cross-cutting concerns
// (security headers, logging, metrics, authentication, rate limiting and error
// rendering) before requests reach domain handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vega/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
// Implementations live in internal/telemetry (Prometheus or CloudWatch).
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// ShutdownHook releases a resource when the server stops.
type ShutdownHook func(ctx context.Context) error

// Server encapsulates all dependencies of the HTTP API so they can be
// replaced in tests.
type Server struct {
	Config         *config.Config
	Logger         *slog.Logger
	Validator      *Validator
	Metrics        MetricsCollector
	Authenticator  Authenticator
	RateLimitStore RateLimitStore
	HealthProbes   []HealthProbe

	// MetricsHandler serves GET /metrics when the metrics backend is pull
	// based. Nil leaves the route unmounted.
	MetricsHandler http.Handler

	// V1RouteRegistrars are populated by main. The indirection keeps core
	// free of imports on handler packages.
	V1RouteRegistrars []func(chi.Router)

	shutdownHooks []ShutdownHook
	router        *chi.Mux
}

// NewServer initializes the server and its router. Routes are mounted
// separately via MountRoutes so tests can customize registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers a hook run by Shutdown in reverse registration order.
func (s *Server) OnShutdown(hook ShutdownHook) {
	s.shutdownHooks = append(s.shutdownHooks, hook)
}

// Shutdown runs every registered hook and returns the joined errors.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for i := len(s.shutdownHooks) - 1; i >= 0; i-- {
		if err := s.shutdownHooks[i](ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutting down: %w", errors.Join(errs...))
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
