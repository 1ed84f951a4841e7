// Package jobs schedules the engine's background work: sweeping expired
// holds and retrying pending-allocation bookings.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// HoldSweeper drains expired holds in batches.
type HoldSweeper interface {
	SweepUntilDrained(ctx context.Context, limit int, pause time.Duration) (int, error)
}

// Runner processes one batch of work. The auto-assign job implements this.
type Runner interface {
	Run(ctx context.Context) error
}

// Config tunes the background schedules. Specs use the standard five-field
// cron syntax or descriptors such as "@every 30s".
type Config struct {
	SweepSchedule      string
	AutoAssignSchedule string
	SweepBatchLimit    int
	SweepPause         time.Duration
	RunTimeout         time.Duration
}

// Scheduler owns the cron runner for the background jobs.
type Scheduler struct {
	cron    *cron.Cron
	sweeper HoldSweeper
	assign  Runner
	cfg     Config
	logger  *slog.Logger
}

// NewScheduler registers the sweep and auto-assign schedules. Overlapping
// runs of the same job are skipped rather than queued.
func NewScheduler(cfg Config, sweeper HoldSweeper, assign Runner, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "@every 1m"
	}
	if cfg.AutoAssignSchedule == "" {
		cfg.AutoAssignSchedule = "@every 2m"
	}
	if cfg.SweepBatchLimit <= 0 {
		cfg.SweepBatchLimit = 100
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = time.Minute
	}

	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger{logger}),
			cron.Recover(cronLogger{logger}),
		)),
		sweeper: sweeper,
		assign:  assign,
		cfg:     cfg,
		logger:  logger,
	}

	if sweeper != nil {
		if _, err := s.cron.AddFunc(cfg.SweepSchedule, s.runSweep); err != nil {
			return nil, fmt.Errorf("jobs: invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
		}
	}
	if assign != nil {
		if _, err := s.cron.AddFunc(cfg.AutoAssignSchedule, s.runAutoAssign); err != nil {
			return nil, fmt.Errorf("jobs: invalid auto-assign schedule %q: %w", cfg.AutoAssignSchedule, err)
		}
	}
	return s, nil
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("background jobs started",
		"sweep_schedule", s.cfg.SweepSchedule,
		"auto_assign_schedule", s.cfg.AutoAssignSchedule)
}

// Stop halts scheduling and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("background jobs stopped")
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()

	removed, err := s.sweeper.SweepUntilDrained(ctx, s.cfg.SweepBatchLimit, s.cfg.SweepPause)
	if err != nil {
		s.logger.ErrorContext(ctx, "hold sweep failed", "removed", removed, "error", err)
		return
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "hold sweep completed", "removed", removed)
	}
}

func (s *Scheduler) runAutoAssign() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()

	if err := s.assign.Run(ctx); err != nil {
		s.logger.ErrorContext(ctx, "auto-assign run failed", "error", err)
	}
}

// cronLogger adapts slog to the cron runner's logging interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
