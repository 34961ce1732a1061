package scheduler

import (
	"context"
	"time"

	"github.com/x1thexxx-lgtm/hostinv/pkg/config"
	"github.com/x1thexxx-lgtm/hostinv/pkg/logging"
)

// TaskRunner is one inventory run.
type TaskRunner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to TaskRunner.
type RunnerFunc func(ctx context.Context) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Scheduler repeats inventory runs every tick.
type Scheduler struct {
	cfg    config.SchedulerConfig
	runner TaskRunner
	log    *logging.Logger
}

// New creates scheduler.
func New(cfg config.SchedulerConfig, runner TaskRunner, log *logging.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, runner: runner, log: log}
}

// Start runs the task on every tick until ctx is done. A failed run is
// logged and the next tick still fires. Runs never overlap: a run longer
// than the tick delays the next one.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Infof("scheduler disabled")
		return
	}
	interval, err := time.ParseDuration(s.cfg.Tick)
	if err != nil || interval <= 0 {
		s.log.Errorf("invalid scheduler tick %q", s.cfg.Tick)
		return
	}
	s.log.Infof("next inventory run in %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runner.Run(ctx); err != nil {
				s.log.Errorf("scheduled run error: %v", err)
			}
		}
	}
}
