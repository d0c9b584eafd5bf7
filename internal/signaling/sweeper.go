package signaling

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper periodically discards expired acceptance records until ctx is done.
func StartSweeper(ctx context.Context, guard AcceptanceGuard, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Acceptance sweeper started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				sweepOnce(ctx, guard)
			case <-ctx.Done():
				slog.Info("Acceptance sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepOnce(ctx context.Context, guard AcceptanceGuard) {
	removed, err := guard.Sweep(ctx)
	if err != nil {
		slog.Error("Acceptance sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Debug("Acceptance records expired", "count", removed)
	}
}
