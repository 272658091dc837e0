package store

import (
	"context"
	"log/slog"
	"time"
)

const historyPruneInterval = 1 * time.Hour

// PruneCallback is called after a sweep removed at least one session.
type PruneCallback func(removed int64)

// StartHistoryPruner runs a background goroutine that periodically forgets
// chat sessions not opened within ttl. A non-positive ttl disables pruning.
func StartHistoryPruner(ctx context.Context, repo Repository, ttl time.Duration, onPrune PruneCallback) {
	if ttl <= 0 {
		slog.Info("History pruner disabled")
		return
	}

	ticker := time.NewTicker(historyPruneInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("History pruner started", "interval", historyPruneInterval, "ttl", ttl)

		pruneHistory(ctx, repo, ttl, onPrune)
		for {
			select {
			case <-ticker.C:
				pruneHistory(ctx, repo, ttl, onPrune)
			case <-ctx.Done():
				slog.Info("History pruner shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func pruneHistory(ctx context.Context, repo Repository, ttl time.Duration, onPrune PruneCallback) {
	removed, err := repo.PruneHistory(ctx, ttl)
	if err != nil {
		slog.Error("History pruner failed", "error", err)
		return
	}
	if removed == 0 {
		return
	}
	slog.Info("History pruner removed stale sessions", "count", removed)
	if onPrune != nil {
		onPrune(removed)
	}
}
