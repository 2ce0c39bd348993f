package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner executes named tasks in the background, at most one instance
// of each name at a time. The HTTP trigger endpoints use it so a
// double-clicked trigger cannot run a stage against itself.
type Runner struct {
	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

// NewRunner creates an empty runner.
func NewRunner() *Runner {
	return &Runner{inflight: make(map[string]bool)}
}

// Trigger starts fn in the background under the given name. Returns
// false without starting anything when a task with that name is still
// running.
func (r *Runner) Trigger(ctx context.Context, name string, fn JobFunc) bool {
	r.mu.Lock()
	if r.inflight[name] {
		r.mu.Unlock()
		return false
	}
	r.inflight[name] = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.inflight, name)
			r.mu.Unlock()
		}()

		start := time.Now()
		zap.L().Info("trigger started", zap.String("task", name))
		if err := fn(ctx); err != nil {
			zap.L().Error("trigger failed",
				zap.String("task", name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
			return
		}
		zap.L().Info("trigger finished",
			zap.String("task", name),
			zap.Duration("elapsed", time.Since(start)))
	}()
	return true
}

// Running reports whether a task with the given name is in flight.
func (r *Runner) Running(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inflight[name]
}

// Wait blocks until every triggered task has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
