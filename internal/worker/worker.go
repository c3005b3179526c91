package worker

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is used when no expiry interval is configured.
const DefaultInterval = time.Hour

// Expirer marks subscriptions whose expiry has passed.
type Expirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// Worker periodically expires subscriptions so their credits stop being spendable.
type Worker struct {
	subs     Expirer
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// New creates a new worker instance
func New(subs Expirer, logger *slog.Logger, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Worker{
		subs:     subs,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Start sweeps once immediately and then on every tick until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Worker started", "expiry_interval", w.interval.String())

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep runs one expiry pass. Failures are logged and retried on the next tick.
func (w *Worker) sweep(ctx context.Context) int64 {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Panic recovered in expiry sweep", "panic", r)
		}
	}()

	n, err := w.subs.ExpireDue(ctx, w.now())
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Failed to expire subscriptions", "error", err)
		}
		return 0
	}
	if n > 0 {
		w.logger.Info("Expired subscriptions", "count", n)
	}
	return n
}
