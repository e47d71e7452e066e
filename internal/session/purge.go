package session

// purge.go removes expired session entries from backends without native
// expiry (Postgres). Redis entries expire through their TTL instead.
//
// The scheduler runs once on start and then every Interval until its context
// is cancelled. A failed purge is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// Purger deletes entries older than maxAge.
type Purger interface {
	Purge(ctx context.Context, maxAge time.Duration) (int64, error)
}

// PurgeConfig controls the purge scheduler.
type PurgeConfig struct {
	MaxAge   time.Duration // entries older than this are deleted
	Interval time.Duration // how often to run (default: 1h)
}

// RunPurgeScheduler blocks until ctx is cancelled. It always returns nil so
// it can run inside an errgroup without tearing the group down.
func RunPurgeScheduler(ctx context.Context, p Purger, cfg PurgeConfig) error {
	if cfg.MaxAge <= 0 {
		slog.Info("session purge disabled", "reason", "no max age")
		<-ctx.Done()
		return nil
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}

	slog.Info("session purge scheduler started",
		"max_age", cfg.MaxAge.String(),
		"interval", cfg.Interval.String(),
	)

	runPurge(ctx, p, cfg.MaxAge)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session purge scheduler stopped")
			return nil
		case <-ticker.C:
			runPurge(ctx, p, cfg.MaxAge)
		}
	}
}

func runPurge(ctx context.Context, p Purger, maxAge time.Duration) {
	start := time.Now()
	n, err := p.Purge(ctx, maxAge)
	if err != nil {
		slog.Error("session purge failed", "error", err)
		return
	}
	slog.Info("purged expired sessions",
		"entries_purged", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
