package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corebridge/platform-core/internal/config"
	"github.com/corebridge/platform-core/internal/observability"
	"github.com/corebridge/platform-core/internal/server"
)

// runServe implements the serve command logic: configuration loading,
// server construction, and graceful shutdown.
func runServe(ctx context.Context, configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("starting corebridge server", "version", version, "commit", commit, "config", configPath, "debug", debug)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := cfg.Observability.LogLevel
	if debug {
		logLevel = "debug"
	}
	log := observability.NewLogger(observability.LogConfig{Level: logLevel, Format: "json"})

	srv, err := server.New(cfg, configPath, log)
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	slog.Info("corebridge server started", "http_addr", cfg.Transport.HTTP.Addr, "stdio_enabled", cfg.Transport.Stdio.Enabled)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	slog.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("corebridge server stopped gracefully")
	return nil
}
