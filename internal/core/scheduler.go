package core

// scheduler.go runs the audit retention job. It prunes audit_log entries
// older than the retention window in batches, once on start and then every
// CheckInterval, until its context is cancelled. A failed run is logged and
// retried on the next tick.

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

// RetentionConfig holds configuration for the audit retention job.
// Zero values fall back to the defaults below.
type RetentionConfig struct {
	RetentionDays int           // Days to keep audit entries (default: 90)
	BatchSize     int           // Rows deleted per statement (default: 5000)
	CheckInterval time.Duration // How often to run (default: 24h)
}

const (
	DefaultRetentionDays     = 90
	DefaultRetentionBatch    = 5000
	DefaultRetentionInterval = 24 * time.Hour
)

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.RetentionDays <= 0 {
		c.RetentionDays = DefaultRetentionDays
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultRetentionBatch
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultRetentionInterval
	}
	return c
}

type pruneFunc func(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)

// StartAuditRetention blocks, pruning old audit entries periodically.
// Run it in its own goroutine.
func (s *Service) StartAuditRetention(ctx context.Context, cfg RetentionConfig) {
	runRetention(ctx, clock.RealClock{}, cfg.withDefaults(), s.PruneAudit)
}

func runRetention(ctx context.Context, clk clock.WithTicker, cfg RetentionConfig, prune pruneFunc) {
	slog.Info("audit retention started",
		"retention_days", cfg.RetentionDays,
		"batch_size", cfg.BatchSize,
		"interval", cfg.CheckInterval,
	)

	pruneOnce(ctx, clk, cfg, prune)

	ticker := clk.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("audit retention stopped")
			return
		case <-ticker.C():
			pruneOnce(ctx, clk, cfg, prune)
		}
	}
}

// pruneOnce deletes batches until one comes back short.
func pruneOnce(ctx context.Context, clk clock.WithTicker, cfg RetentionConfig, prune pruneFunc) int64 {
	start := clk.Now()
	cutoff := start.AddDate(0, 0, -cfg.RetentionDays)

	var total int64
	for {
		n, err := prune(ctx, cutoff, cfg.BatchSize)
		if err != nil {
			slog.Error("audit prune failed", "error", err, "pruned", total)
			return total
		}
		total += n
		if n < int64(cfg.BatchSize) || ctx.Err() != nil {
			break
		}
	}

	slog.Info("audit prune completed",
		"entries_pruned", total,
		"cutoff", cutoff.Format(time.RFC3339),
		"duration_ms", clk.Since(start).Milliseconds(),
	)
	return total
}
