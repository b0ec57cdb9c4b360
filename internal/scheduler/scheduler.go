package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/trail-status/internal/aggregate"
)

// Runner executes one aggregation cycle.
type Runner interface {
	Run(ctx context.Context) aggregate.Result
}

// Scheduler periodically runs full aggregation cycles so status changes are
// detected even when no client is polling.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler.
func New(interval time.Duration, runner Runner, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic cycle and starts the underlying scheduler. The
// first cycle runs immediately.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 30
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(s.runCycle)
	if err != nil {
		return err
	}

	s.logger.Info("scheduler started", "interval_minutes", minutes)
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) runCycle() {
	s.logger.Debug("scheduler: running aggregation cycle")

	res := s.runner.Run(context.Background())
	if res.Failed {
		s.logger.Warn("scheduled cycle failed", "error", res.Response.Error)
		return
	}
	s.logger.Debug("scheduler: completed aggregation cycle", "trails", len(res.Response.Trails))
}
