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

	"github.com/csvinspect/csvinspect/internal/config"
	"github.com/csvinspect/csvinspect/internal/core"
	"github.com/csvinspect/csvinspect/internal/logging"
	"github.com/csvinspect/csvinspect/internal/storage"
	"github.com/csvinspect/csvinspect/internal/store"
	"github.com/csvinspect/csvinspect/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"addr", cfg.Server.Addr(),
		"db_max_conns", cfg.Database.MaxConns,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Schema migrations run before the pool opens so every worker sees
	// the final shape.
	if err := store.Migrate(cfg.Database.DSN()); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	slog.Info("connected to database", "name", cfg.Database.Name)

	files, err := storage.New(cfg.Upload.Folder)
	if err != nil {
		return fmt.Errorf("prepare upload folder: %w", err)
	}

	service := core.NewService(store.New(pool), files, cfg.Upload)
	server := web.NewServer(service, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		service.RunSweeper(gctx, cfg.Sweep)
		return nil
	})

	// Shutdown watcher: on signal (or server failure) drain uploads,
	// then close the listener.
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for uploads to complete", "active", status.Active)
			drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Upload.DrainTimeout)
			defer cancelDrain()
			if err := service.WaitForUploads(drainCtx); err != nil {
				slog.Warn("uploads did not complete in time", "error", err)
			} else {
				slog.Info("all uploads completed")
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
