package core

// sweeper.go reconciles the upload directory against the database. Crash
// windows (write before insert, row delete before unlink) and failed
// unlinks leave files on disk that no row references; the sweeper removes
// them once they are older than the configured minimum age. The age guard
// also protects files whose insert is still in flight.

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/csvinspect/csvinspect/internal/config"
)

// RunSweeper periodically removes orphaned upload files. It runs one pass
// immediately, then every cfg.Interval until the context is cancelled.
// A non-positive interval disables sweeping.
func (s *Service) RunSweeper(ctx context.Context, cfg config.SweepConfig) {
	if cfg.Interval <= 0 {
		slog.Info("orphan sweeper disabled")
		return
	}

	slog.Info("orphan sweeper started",
		"interval", cfg.Interval.String(),
		"min_age", cfg.MinAge.String(),
	)

	s.sweepOnce(ctx, cfg.MinAge)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("orphan sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx, cfg.MinAge)
		}
	}
}

// sweepOnce performs a single reconciliation pass. Failures are logged
// and the next tick retries; a sweep never takes the service down.
func (s *Service) sweepOnce(ctx context.Context, minAge time.Duration) {
	start := time.Now()

	names, err := s.store.StoredFilenames(ctx)
	if err != nil {
		slog.Error("sweep failed to list stored filenames", "error", err)
		return
	}
	known := make(map[string]struct{}, len(names))
	for _, n := range names {
		known[n] = struct{}{}
	}

	entries, err := os.ReadDir(s.files.Root())
	if err != nil {
		slog.Error("sweep failed to read upload directory", "dir", s.files.Root(), "error", err)
		return
	}

	cutoff := time.Now().Add(-minAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, ok := known[name]; ok {
			continue
		}

		// Unreferenced entries include stale temp files from failed
		// writes; both go once they age past the cutoff.
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.files.Root(), name)); err != nil {
			slog.Warn("sweep failed to remove orphan", "name", name, "error", err)
			continue
		}
		removed++
		slog.Debug("removed orphan file", "name", name)
	}

	if removed > 0 {
		slog.Info("sweep removed orphan files",
			"removed", removed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	} else {
		slog.Debug("sweep found no orphans", "duration_ms", time.Since(start).Milliseconds())
	}
}
