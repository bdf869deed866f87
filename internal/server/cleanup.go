package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// CleanupConfig holds configuration for the cleanup job
type CleanupConfig struct {
	Interval time.Duration
	// MaxAge is how old a bundle directory may get before it is swept.
	// Zero disables the job.
	MaxAge  time.Duration
	Root    string
	Logger  *zap.Logger
	Metrics *Metrics
}

// StartCleanupJob periodically removes bundle directories older than MaxAge.
// It catches bundles whose index was never requested and reapers lost to a
// restart. It blocks until ctx is done.
func StartCleanupJob(ctx context.Context, cfg CleanupConfig) {
	logger := cfg.Logger.With(zap.String("service", "cleanup"))
	if cfg.MaxAge <= 0 || cfg.Interval <= 0 {
		logger.Info("disabled")
		return
	}

	logger.Info("starting",
		zap.Duration("interval", cfg.Interval),
		zap.Duration("max_age", cfg.MaxAge),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting_down")
			return
		case <-ticker.C:
			runCleanup(ctx, cfg, logger)
		}
	}
}

func runCleanup(ctx context.Context, cfg CleanupConfig, logger *zap.Logger) {
	start := time.Now()

	deleted, err := SweepBundles(ctx, cfg.Root, start.Add(-cfg.MaxAge), logger)
	if err != nil {
		logger.Warn("sweep_failed", zap.NamedError("err", err), zap.String("path", cfg.Root))
	}
	if cfg.Metrics != nil {
		cfg.Metrics.RecordSwept(deleted)
	}

	logger.Debug("cleanup_complete",
		zap.Int("deleted", deleted),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

// SweepBundles removes every bundle directory under root last modified
// before cutoff and returns how many were removed. Entries whose name is not
// a canonical build id are never touched. A zero cutoff removes every bundle
// regardless of age.
func SweepBundles(ctx context.Context, root string, cutoff time.Time, logger *zap.Logger) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, fmt.Errorf("read bundle root: %w", err)
	}

	deleted := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		if !entry.IsDir() {
			continue
		}
		id, err := ParseBuildID(entry.Name())
		if err != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// Removed concurrently, most likely by a reaper.
			continue
		}
		if !cutoff.IsZero() && !info.ModTime().Before(cutoff) {
			continue
		}

		dir := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("failed to delete stale project",
				zap.NamedError("err", err),
				zap.String("path", dir),
				zap.Stringer("build_id", id),
			)
			continue
		}
		logger.Info("deleted stale project",
			zap.String("path", dir),
			zap.Stringer("build_id", id),
			zap.Duration("age", time.Since(info.ModTime())),
		)
		deleted++
	}
	return deleted, nil
}

// ResetBundleRoot makes sure root exists and clears every bundle left over
// from a previous run.
func ResetBundleRoot(ctx context.Context, root string, logger *zap.Logger) (int, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return 0, fmt.Errorf("create bundle root: %w", err)
	}
	return SweepBundles(ctx, root, time.Time{}, logger)
}
