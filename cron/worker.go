package cron

import (
	"context"
	"fmt"

	"voltslot/services/scheduler"

	"go.uber.org/zap"
)

// InitWorkers registers the expiry and reminder handlers, starts the
// scheduler and launches the sweeper. It fails if the scheduler backend is
// unreachable, so the service never runs without deadline enforcement.
func InitWorkers(ctx context.Context, sched scheduler.Scheduler, expiry *ExpiryWorker, reminder *ReminderWorker, sweeper *Sweeper, logger *zap.Logger) error {
	sched.Handle(scheduler.KindExpiry, expiry)
	sched.Handle(scheduler.KindReminder, reminder)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	if sweeper != nil {
		// Catch anything that went overdue while the service was down.
		if n, err := sweeper.SweepOnce(ctx); err != nil {
			logger.Warn("initial sweep failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("initial sweep re-enqueued overdue reservations", zap.Int("count", n))
		}
		go sweeper.Run(ctx)
	}
	logger.Info("reservation workers started")
	return nil
}
