// Package scheduler runs the periodic ledger sweeps on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task is one periodic unit of work. Errors are logged and do not unschedule the task.
type Task func(ctx context.Context) error

// Scheduler wraps a cron runner with structured logging and panic recovery.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// Options configures a Scheduler.
type Options struct {
	Location *time.Location
	// Timeout bounds a single task run. Zero means no bound.
	Timeout time.Duration
	Logger  *zap.Logger
}

// New builds a scheduler. Cron specs use the standard five-field format.
func New(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(
		cron.WithLocation(opts.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Scheduler{cron: c, logger: opts.Logger, timeout: opts.Timeout, ctx: ctx, cancel: cancel}
}

// Register schedules task under name.
func (s *Scheduler) Register(name, spec string, task Task) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(name, task) })
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.logger.Info("task scheduled", zap.String("task", name), zap.String("spec", spec))
	return nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running tasks to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

func (s *Scheduler) run(name string, task Task) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", zap.String("task", name), zap.Any("panic", r))
		}
	}()

	if err := task(ctx); err != nil {
		s.logger.Error("task failed", zap.String("task", name), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	s.logger.Info("task completed", zap.String("task", name), zap.Duration("duration", time.Since(start)))
}
