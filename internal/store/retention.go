package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRetentionInterval is how often the retention worker sweeps the journal.
const DefaultRetentionInterval = time.Hour

// StartRetentionWorker runs a background goroutine that periodically deletes
// journal events older than retention. It stops when ctx is cancelled.
func StartRetentionWorker(ctx context.Context, repo Repository, retention, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, repo, retention)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, repo Repository, retention time.Duration) {
	deleted, err := repo.CleanupOlderThan(ctx, retention)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Retention sweep interrupted", "error", err)
			return
		}
		slog.Error("Retention worker failed to cleanup activity events", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Retention worker removed old activity events", "count", deleted)
	}
}
