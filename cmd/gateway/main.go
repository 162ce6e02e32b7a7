// Package main is the entry point for the remote executor gateway.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/relaygate/internal/config"
	"github.com/pitabwire/relaygate/internal/dispatch"
	"github.com/pitabwire/relaygate/internal/executor"
	"github.com/pitabwire/relaygate/internal/metrics"
	"github.com/pitabwire/relaygate/internal/observability"
	"github.com/pitabwire/relaygate/internal/retrypolicy"
	"github.com/pitabwire/relaygate/internal/transport"
	"github.com/pitabwire/relaygate/internal/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "", "path to configuration file (optional; defaults are used when empty)")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize the logger.
	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Step 4: Build the executor registry, retry controller, and metrics
	// accumulator.
	registry := executor.NewRegistry()
	registry.Register(executor.NewHTTPExecutor(executor.HTTPConfig{
		MaxResponseBodyBytes: cfg.HTTP.MaxResponseBodyBytes(),
		DefaultTimeout:       cfg.HTTP.DefaultTimeout(),
		FilteredHeaders:      cfg.HTTP.FilteredHeaders,
		TransientStatusCodes: cfg.Retry.TransientStatusSet(),
	}, logger))
	registry.Register(executor.NewShellExecutor(executor.ShellConfig{
		AllowedCommands: cfg.Shell.AllowedCommands,
	}, logger))

	retryController := retrypolicy.New(retrypolicy.Config{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		BaseDelay:         cfg.Retry.BaseDelay(),
		MaxDelay:          cfg.Retry.MaxDelay(),
		PerAttemptTimeout: cfg.Retry.PerAttemptTimeout(),
		JitterFraction:    cfg.Retry.JitterFraction,
	})

	acc := metrics.New()

	// Step 5: Build the dispatch controller.
	dispatchController := dispatch.New(
		validator.Config{MaxBodyBytes: cfg.Service.MaxRequestBodyBytes()},
		registry,
		retryController,
		acc,
	)

	// Step 6: Build the HTTP router.
	transport.SetInstanceID(cfg.Service.InstanceID)
	router := transport.NewRouter(transport.Dependencies{
		Dispatch:            dispatchController,
		Metrics:             acc,
		Logger:              logger,
		InstanceID:          cfg.Service.InstanceID,
		MaxRequestBodyBytes: cfg.Service.MaxRequestBodyBytes(),
		RequestTimeout:      cfg.Retry.PerAttemptTimeout() * time.Duration(cfg.Retry.MaxAttempts),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 7: Start the HTTP server.
	logger.Info("gateway started",
		zap.Int("port", cfg.Server.Port),
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.Strings("executors", registry.Names()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Step 8: Graceful shutdown, draining in-flight requests.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}
