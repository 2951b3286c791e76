// Command server runs the EV2 collection API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/ev2/internal/config"
	"github.com/JonMunkholm/ev2/internal/core"
	_ "github.com/JonMunkholm/ev2/internal/core/collections" // Register all collections
	"github.com/JonMunkholm/ev2/internal/logging"
	"github.com/JonMunkholm/ev2/internal/web"
)

func main() {
	// A missing .env is normal in deployed environments
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"batch_max_items", cfg.Batch.MaxItems,
		"batch_max_concurrent", cfg.Batch.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"api_key_required", cfg.Security.RequireAPIKey,
	)

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	service, err := core.NewService(pool, cfg)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	// "server migrate-down" reverts the schema and exits
	if len(os.Args) > 1 && os.Args[1] == "migrate-down" {
		if err := service.MigrateDown(ctx); err != nil {
			slog.Error("failed to revert schema", "error", err)
			os.Exit(1)
		}
		return
	}

	if cfg.Database.AutoMigrate {
		if err := service.Migrate(ctx); err != nil {
			slog.Error("failed to migrate schema", "error", err)
			os.Exit(1)
		}
		slog.Info("schema up to date")
	}

	slog.Info("collections registered",
		"count", len(core.All()),
		"groups", strings.Join(core.Groups(), ","),
	)

	server := web.NewServer(service, cfg)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartAuditRetention(jobCtx, core.RetentionConfig{
		RetentionDays: cfg.Audit.RetentionDays,
		BatchSize:     cfg.Audit.BatchSize,
		CheckInterval: cfg.Audit.CheckInterval,
	})

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.BatchLimiterStatus(); status.Active > 0 {
			slog.Info("waiting for batch operations to complete", "active", status.Active)
			if err := service.WaitForBatches(shutdownCtx); err != nil {
				slog.Warn("batch operations did not complete in time", "error", err)
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		cancelJobs()
		os.Exit(1)
	}
	<-shutdownDone
	slog.Info("server stopped")
}
