package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/do/v2"
)

// SetupDI initializes the dependency injection container
func SetupDI() (do.Injector, error) {
	injector := do.New()

	// Register Config
	do.Provide(injector, func(i do.Injector) (*Config, error) {
		cfg, err := LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	})

	// Register Storage: Postgres when a database is configured, the
	// in-memory store otherwise (local runs)
	do.Provide(injector, func(i do.Injector) (Storage, error) {
		cfg := do.MustInvoke[*Config](i)
		if cfg.DatabaseURL == "" {
			slog.Warn("No database_url configured, using in-memory storage")
			return NewMemoryStorage(), nil
		}
		storage, err := NewPostgresStorage(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres storage: %w", err)
		}
		return storage, nil
	})

	// Register TaskStore
	do.Provide(injector, func(i do.Injector) (*TaskStore, error) {
		return NewTaskStore(), nil
	})

	// Register Generator
	do.Provide(injector, func(i do.Injector) (Generator, error) {
		cfg := do.MustInvoke[*Config](i)
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai_api_key is required")
		}
		return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIImageModel), nil
	})

	// Register TelegramClient
	do.Provide(injector, func(i do.Injector) (*TelegramClient, error) {
		cfg := do.MustInvoke[*Config](i)
		return NewTelegramClient(cfg.TelegramAPIURL), nil
	})

	// Register Publisher
	do.Provide(injector, func(i do.Injector) (*Publisher, error) {
		telegram := do.MustInvoke[*TelegramClient](i)
		return NewPublisher(telegram), nil
	})

	// Register ContentService
	do.Provide(injector, func(i do.Injector) (*ContentService, error) {
		storage := do.MustInvoke[Storage](i)
		tasks := do.MustInvoke[*TaskStore](i)
		generator := do.MustInvoke[Generator](i)
		publisher := do.MustInvoke[*Publisher](i)
		return NewContentService(storage, tasks, generator, publisher), nil
	})

	// Register AnalysisService
	do.Provide(injector, func(i do.Injector) (*AnalysisService, error) {
		storage := do.MustInvoke[Storage](i)
		tasks := do.MustInvoke[*TaskStore](i)
		return NewAnalysisService(storage, tasks), nil
	})

	// Register FeedService
	do.Provide(injector, func(i do.Injector) (*FeedService, error) {
		storage := do.MustInvoke[Storage](i)
		return NewFeedService(storage), nil
	})

	// Register PublishScheduler
	do.Provide(injector, func(i do.Injector) (*PublishScheduler, error) {
		cfg := do.MustInvoke[*Config](i)
		storage := do.MustInvoke[Storage](i)
		publisher := do.MustInvoke[*Publisher](i)
		interval := time.Duration(cfg.SweepInterval) * time.Second
		return NewPublishScheduler(storage, publisher, interval), nil
	})

	// Register APIServer
	do.Provide(injector, func(i do.Injector) (*APIServer, error) {
		cfg := do.MustInvoke[*Config](i)
		content := do.MustInvoke[*ContentService](i)
		analysis := do.MustInvoke[*AnalysisService](i)
		feeds := do.MustInvoke[*FeedService](i)
		server := NewAPIServer(cfg, content, analysis, feeds, HeaderAuth{})
		// Set logger from default slog
		server.SetLogger(slog.Default())
		return server, nil
	})

	return injector, nil
}

// ShutdownDI gracefully shuts down all services
func ShutdownDI(injector do.Injector) error {
	// Stop the scheduler sweep if it exists
	if scheduler, err := do.Invoke[*PublishScheduler](injector); err == nil && scheduler != nil {
		scheduler.Stop()
	}

	// Let in-flight background tasks finish
	if tasks, err := do.Invoke[*TaskStore](injector); err == nil && tasks != nil {
		tasks.Wait()
	}

	// Close the database if we opened one
	if storage, err := do.Invoke[Storage](injector); err == nil && storage != nil {
		if pg, ok := storage.(*PostgresStorage); ok {
			return pg.Close()
		}
	}

	return nil
}
