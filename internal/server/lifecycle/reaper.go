package lifecycle

import (
	"context"
	"log/slog"
	"time"
)

// Reaper runs Sweep on a fixed interval in a background goroutine.
type Reaper struct {
	engine   *Engine
	interval time.Duration
	now      func() time.Time
	done     chan struct{}
}

// NewReaper creates a reaper for engine.
func NewReaper(engine *Engine, interval time.Duration) *Reaper {
	return &Reaper{
		engine:   engine,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop. It sweeps once immediately and stops when
// ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	slog.Info("reaper started", "interval", r.interval)

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.runSweep(ctx)

		for {
			select {
			case <-ticker.C:
				r.runSweep(ctx)
			case <-ctx.Done():
				slog.Info("reaper stopping")
				return
			}
		}
	}()
}

// Wait blocks until the reaper has fully stopped.
func (r *Reaper) Wait() {
	<-r.done
}

func (r *Reaper) runSweep(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("sweep panicked", "panic", p)
		}
	}()

	report := r.engine.Sweep(ctx, r.now())
	if report.Err != nil {
		slog.Error("sweep finished with errors", "error", report.Err)
	}
	slog.Info("sweep complete",
		"scanned", report.Scanned,
		"removed", report.Removed,
		"failed", report.Failed,
		"orphans", report.Orphans,
		"stale_temp", report.StaleTemp,
	)
}
