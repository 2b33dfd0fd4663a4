package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner triggers dispatch cycles on a fixed interval. It is an alternative
// trigger to the HTTP endpoint; both share the engine, and overlap between
// them is safe because claiming is atomic.
type Runner struct {
	interval time.Duration
	engine   *Engine

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRunner creates a periodic dispatch runner.
func NewRunner(interval time.Duration, engine *Engine) *Runner {
	return &Runner{
		interval: interval,
		engine:   engine,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the runner goroutine.
func (r *Runner) Start(ctx context.Context) {
	slog.Info("starting dispatch runner", "interval", r.interval)

	r.wg.Add(1)
	go r.run(ctx)
}

// Stop gracefully stops the runner, waiting for an in-progress cycle.
func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	slog.Info("dispatch runner stopped")
}

func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if _, err := r.engine.RunCycle(ctx, time.Now().UTC()); err != nil {
				slog.Error("scheduled dispatch cycle failed", "error", err)
			}
		}
	}
}
