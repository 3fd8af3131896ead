package cron

import (
	"context"
	"time"

	reservationRepo "voltslot/database/repository/reservation"
	"voltslot/metrics"
	"voltslot/services/scheduler"

	"go.uber.org/zap"
)

const sweepBatch = 200

// Sweeper re-enqueues expiry checks for PENDING reservations whose deadline
// passed, in case their scheduled job was lost.
type Sweeper struct {
	repo     reservationRepo.ReservationRepository
	sched    scheduler.Scheduler
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewSweeper(repo reservationRepo.ReservationRepository, sched scheduler.Scheduler, interval time.Duration, m *metrics.Metrics, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{repo: repo, sched: sched, interval: interval, metrics: m, logger: logger.Named("sweeper"), now: time.Now}
}

// SweepOnce enqueues an immediate expiry job for each overdue reservation and
// returns how many were newly enqueued. Jobs the backend still holds are left alone.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	overdue, err := s.repo.ListOverdueUnpaid(ctx, now, sweepBatch)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, r := range overdue {
		_, created, err := s.sched.ScheduleAt(ctx, scheduler.KindExpiry, r.ID, now)
		if err != nil {
			s.logger.Warn("could not re-enqueue expiry", zap.String("reservationId", r.ID), zap.Error(err))
			continue
		}
		if created {
			enqueued++
		}
	}
	if enqueued > 0 {
		s.logger.Info("overdue reservations re-enqueued", zap.Int("count", enqueued))
		s.metrics.Swept(enqueued)
	}
	return enqueued, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}
