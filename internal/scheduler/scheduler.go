package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fedihype/fedihype/internal/engine"
)

// Scheduler triggers boost cycles on a fixed interval.
//
// Cycles run on the scheduler goroutine itself, so at most one cycle is ever
// in flight: a tick arriving while a cycle is still running is simply
// dropped. The history store relies on this mutual exclusion.
type Scheduler struct {
	engine   *engine.Engine
	interval time.Duration
	log      *logrus.Logger
}

// New creates a scheduler.
func New(eng *engine.Engine, interval time.Duration, log *logrus.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{engine: eng, interval: interval, log: log}
}

// Run starts the cycle loop, running one cycle immediately. Blocks until ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval).Info("scheduler running")
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if _, err := s.engine.RunCycle(ctx); err != nil {
		s.log.WithError(err).Error("boost cycle failed")
	}
}
