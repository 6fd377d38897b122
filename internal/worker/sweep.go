package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"ordem/internal/log"

	"github.com/robfig/cron/v3"
)

// Expirer marks lapsed subscriptions as expired.
type Expirer interface {
	ExpireDue(ctx context.Context) ([]string, error)
}

// Sweeper runs the subscription expiry on a cron schedule.
type Sweeper struct {
	expirer  Expirer
	schedule string
	logger   *log.Logger
	runs     atomic.Int64
}

func NewSweeper(expirer Expirer, schedule string, logger *log.Logger) (*Sweeper, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return &Sweeper{expirer: expirer, schedule: schedule, logger: logger.WithComponent(log.ComponentWorker)}, nil
}

// RunOnce expires due subscriptions and returns how many changed.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	s.runs.Add(1)
	ids, err := s.expirer.ExpireDue(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Subscription sweep failed", log.FieldError, err)
		return 0, err
	}
	if len(ids) > 0 {
		s.logger.InfoContext(ctx, "Expired subscriptions", "count", len(ids))
	}
	return len(ids), nil
}

// Runs counts sweeps since start.
func (s *Sweeper) Runs() int64 { return s.runs.Load() }

// Run schedules the sweep and blocks until ctx is done, then waits for a
// running sweep to finish.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { _, _ = s.RunOnce(ctx) }); err != nil {
		return err
	}
	c.Start()
	s.logger.InfoContext(ctx, "Subscription sweep scheduled", "schedule", s.schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
