// Package jobs runs the recurring pipeline stages on cron schedules and
// serializes manual triggers so a stage never runs against itself.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// JobFunc is one schedulable unit of pipeline work.
type JobFunc func(ctx context.Context) error

// Scheduler wraps a cron runner. Jobs that are still running when their
// next tick arrives are skipped, not stacked.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

// NewScheduler creates a stopped scheduler. Jobs added before Start run
// with the context passed to Start.
func NewScheduler() *Scheduler {
	logger := &cronLogger{}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		ctx: context.Background(),
	}
}

// Add registers a job under the given cron spec.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		zap.L().Info("job started", zap.String("job", name))
		if err := fn(s.ctx); err != nil {
			zap.L().Error("job failed",
				zap.String("job", name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
			return
		}
		zap.L().Info("job finished",
			zap.String("job", name),
			zap.Duration("elapsed", time.Since(start)))
	})
	return eris.Wrapf(err, "jobs: add %s", name)
}

// Start begins scheduling. ctx is handed to every job run.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts the cron logging interface onto zap.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	zap.L().Sugar().Debugw("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	zap.L().Sugar().Errorw("cron: "+msg, append(kv, "error", err)...)
}
