package worker

import (
	"context"
	"log/slog"
	"time"
)

// DueProcessor materializes every recurring occurrence due by now.
type DueProcessor interface {
	ProcessDue(ctx context.Context, now time.Time) (int, error)
}

// RecurringWorker runs a DueProcessor once on start and then on every tick.
type RecurringWorker struct {
	processor DueProcessor
	interval  time.Duration
	now       func() time.Time
}

func NewRecurringWorker(p DueProcessor, interval time.Duration) *RecurringWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RecurringWorker{processor: p, interval: interval, now: time.Now}
}

// Run blocks until ctx is cancelled.
func (w *RecurringWorker) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "Running initial recurring processing", "interval", w.interval)
	w.runOnce(ctx, w.now())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			w.runOnce(ctx, now)
		}
	}
}

func (w *RecurringWorker) runOnce(ctx context.Context, now time.Time) {
	count, err := w.processor.ProcessDue(ctx, now)
	if err != nil {
		slog.ErrorContext(ctx, "Recurring processing failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "Recurring processing complete",
		"occurrences_created", count,
		"next_check", now.Add(w.interval).Format("15:04:05"))
}
