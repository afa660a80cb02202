package ingest

import (
	"context"
	"log/slog"
	"time"

	"milkwatch/internal/model"
)

func SendNonBlocking(ctx context.Context, out chan<- model.Reading, r model.Reading, logger *slog.Logger) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("reading channel full, dropping reading", "device_id", r.DeviceID, "observed_at", r.ObservedAt)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
