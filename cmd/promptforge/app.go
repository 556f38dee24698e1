package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/backends"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/engine"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/quota"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/steps"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/store"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/validation"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/workflows"
)

// app is the wired object graph shared by serve, mcp and run.
type app struct {
	cfg    *Config
	store  *store.LibSQLStore
	svc    *workflows.Service
	logger *slog.Logger
}

// newApp opens and migrates the store and wires backends, executors, the
// interpreter and the workflow service. metered selects the store-backed
// quota gate; otherwise every run is allowed.
func newApp(ctx context.Context, cfg *Config, logger *slog.Logger, metered bool) (*app, error) {
	s, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	set := backends.NewSet(
		backends.NewClaudeBackend(backends.ClaudeConfig{
			APIKey:    cfg.Claude.APIKey,
			BaseURL:   cfg.Claude.BaseURL,
			Model:     cfg.Claude.Model,
			Version:   cfg.Claude.Version,
			MaxTokens: cfg.Claude.MaxTokens,
			Timeout:   cfg.HTTPTimeout,
		}),
		backends.NewGroqBackend(backends.GroqConfig{
			APIKey:      cfg.Groq.APIKey,
			BaseURL:     cfg.Groq.BaseURL,
			Model:       cfg.Groq.Model,
			MaxTokens:   cfg.Groq.MaxTokens,
			Temperature: cfg.Groq.Temperature,
			Timeout:     cfg.HTTPTimeout,
		}),
	)
	if cfg.Claude.APIKey == "" {
		logger.Warn("claude API key not configured; claude steps will fail")
	}
	if cfg.Groq.APIKey == "" {
		logger.Warn("groq API key not configured; groq steps will fail")
	}

	registry := steps.NewDefaultRegistry(set)
	validator, err := validation.NewWorkflowValidator(registry)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	var gate quota.Gate = quota.AllowAll{}
	if metered {
		gate, err = quota.NewStoreGate(s, quota.Config{
			MonthlyLimit: cfg.Quota.MonthlyLimit,
			Rule:         cfg.Quota.Rule,
		})
		if err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	svc := workflows.NewService(workflows.Deps{
		Store: s,
		Interpreter: engine.NewInterpreter(engine.Config{
			Store:    s,
			Registry: registry,
			Logger:   logger,
		}),
		Validator: validator,
		Gate:      gate,
		Logger:    logger,
	})

	return &app{cfg: cfg, store: s, svc: svc, logger: logger}, nil
}

// openStore opens the configured database and applies pending migrations.
func openStore(ctx context.Context, cfg *Config) (*store.LibSQLStore, error) {
	if err := ensureDBDir(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	s, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
