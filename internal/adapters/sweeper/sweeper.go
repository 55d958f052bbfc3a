// Package sweeper settles completed battles on a fixed interval.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// ReadySettler settles every battle whose participants reached the target.
type ReadySettler interface {
	SettleReady(ctx context.Context) (int, error)
}

// Sweeper runs ReadySettler.SettleReady as a gocron duration job.
type Sweeper struct {
	sched    gocron.Scheduler
	settler  ReadySettler
	interval time.Duration
}

// New creates a sweeper; it does nothing until Start.
func New(settler ReadySettler, interval time.Duration) (*Sweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweeper.New: interval must be positive, got %s", interval)
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("sweeper.New: scheduler: %w", err)
	}
	return &Sweeper{sched: sched, settler: settler, interval: interval}, nil
}

// Start registers the job and starts the scheduler. The first sweep runs
// immediately; overlapping runs are skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			s.RunOnce(ctx)
		}),
		gocron.WithName("settle-ready"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("sweeper.Start: new job: %w", err)
	}
	s.sched.Start()
	slog.Info("sweeper: started", "interval", s.interval)
	return nil
}

// RunOnce does a single sweep and returns how many battles it settled.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	n, err := s.settler.SettleReady(ctx)
	if err != nil {
		slog.Warn("sweeper: sweep finished with errors", "settled", n, "err", err)
		return n
	}
	if n > 0 {
		slog.Info("sweeper: battles settled", "settled", n)
	} else {
		slog.Debug("sweeper: nothing ready")
	}
	return n
}

// Stop shuts the scheduler down, waiting for a running sweep.
func (s *Sweeper) Stop() error {
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("sweeper.Stop: %w", err)
	}
	return nil
}
