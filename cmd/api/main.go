// Package main is the entry point for the Vega billing and access API.
//
// It loads configuration, connects PostgreSQL and (optionally) Redis,
// selects the payment provider and metrics backend, wires the billing
// services into the HTTP handlers and serves them on the core chassis.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vega/internal/config"
	"vega/internal/core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("vega API starting",
		"environment", cfg.Environment,
		"build", cfg.Build.String(),
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := connectDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv, err := buildServer(cfg, deps, logger)
	if err != nil {
		deps.close(context.Background())
		return fmt.Errorf("creating server: %w", err)
	}
	srv.MountRoutes()

	return runHTTPServer(ctx, srv, cfg, logger)
}

// runHTTPServer serves until ctx is cancelled or the listener fails, then
// drains in-flight requests and releases server resources.
func runHTTPServer(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Pools, Redis and the CloudWatch flusher.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		if runErr == nil {
			runErr = fmt.Errorf("server shutdown: %w", err)
		}
	}

	if runErr == nil {
		logger.Info("server stopped cleanly")
	}
	return runErr
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
