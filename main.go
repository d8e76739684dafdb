package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/samber/do/v2"
	slogmulti "github.com/samber/slog-multi"
)

func main() {
	// Setup structured logging with multiple handlers using slog-multi
	// Fanout sends logs to multiple handlers simultaneously
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	jsonHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	})

	// Use Fanout to send logs to both handlers
	multiHandler := slogmulti.Fanout(textHandler, jsonHandler)
	logger := slog.New(multiHandler)
	slog.SetDefault(logger)

	// Load .env before config so local overrides reach koanf's env provider
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on OS environment variables")
	}

	// Setup dependency injection
	injector, err := SetupDI()
	if err != nil {
		slog.Error("Failed to setup dependency injection", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := ShutdownDI(injector); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}()

	// Get services from DI container
	cfg := do.MustInvoke[*Config](injector)
	scheduler := do.MustInvoke[*PublishScheduler](injector)
	apiServer := do.MustInvoke[*APIServer](injector)

	// Start the scheduled-content sweep
	scheduler.Start()

	// Start API server
	go func() {
		if err := apiServer.Start(); err != nil {
			slog.Error("Failed to start API server", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Content studio started", "port", cfg.HTTPPort, "env", cfg.AppEnv)
	slog.Info("Press Ctrl+C to stop")

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	slog.Info("Shutting down...")
}
