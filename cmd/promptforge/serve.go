package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/api"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/logging"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address override (e.g. :8080)")
	return cmd
}

func serve(parent context.Context, cfg *Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(os.Stderr, cfg.LogLevel, true)
	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Retention.Enabled {
		retention, err := scheduler.NewRetention(a.store, scheduler.RetentionConfig{
			Schedule: cfg.Retention.Schedule,
			MaxAge:   cfg.Retention.MaxAge,
			Vacuum:   cfg.Retention.Vacuum,
		}, logger)
		if err != nil {
			return err
		}
		if err := retention.Start(ctx); err != nil {
			return err
		}
		defer retention.Stop()
	}

	srv := api.NewServer(a.svc, logger)
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start(cfg.ListenAddr)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.String("error", err.Error()))
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}
