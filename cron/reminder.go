package cron

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	directoryRepo "voltslot/database/repository/directory"
	reservationRepo "voltslot/database/repository/reservation"
	"voltslot/metrics"
	"voltslot/models"
	"voltslot/services/notification"
	"voltslot/services/scheduler"

	"go.uber.org/zap"
)

// ReminderWorker nudges the user to pay before the deadline.
type ReminderWorker struct {
	repo     reservationRepo.ReservationRepository
	users    directoryRepo.UserDirectory
	notifier notification.Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewReminderWorker(
	repo reservationRepo.ReservationRepository,
	users directoryRepo.UserDirectory,
	notifier notification.Notifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ReminderWorker {
	return &ReminderWorker{repo: repo, users: users, notifier: notifier, metrics: m, logger: logger.Named("reminder-worker"), now: time.Now}
}

func (w *ReminderWorker) Handle(ctx context.Context, job scheduler.Job) (scheduler.Outcome, error) {
	log := w.logger.With(zap.String("reservationId", job.ReservationID), zap.String("jobId", job.ID))

	r, err := w.repo.GetByID(ctx, job.ReservationID)
	if errors.Is(err, reservationRepo.ErrNotFound) {
		return scheduler.OutcomeSkipped, nil
	}
	if err != nil {
		return "", err
	}
	if r.IsPaid || r.Status != models.StatusPending {
		return scheduler.OutcomeSkipped, nil
	}
	remaining := r.PaymentDeadline.Sub(w.now())
	if remaining <= 0 {
		return scheduler.OutcomeSkipped, nil
	}

	u, err := w.users.GetUser(ctx, r.UserID)
	if errors.Is(err, directoryRepo.ErrNotFound) {
		log.Warn("reminder skipped, user not found", zap.String("userId", r.UserID))
		return scheduler.OutcomeSkipped, nil
	}
	if err != nil {
		return "", err
	}

	minutes := int(math.Ceil(remaining.Minutes()))
	n := models.Notification{
		Email:     u.Email,
		PushToken: u.FCMToken,
		Subject:   "Complete your payment",
		Body: fmt.Sprintf("Pay %.2f BDT within %d minute%s to keep your charging slot at %s.",
			r.TotalCostBDT, minutes, plural(minutes), r.StartTime.Format(time.RFC1123)),
		Data: map[string]string{
			"type":             "payment_reminder",
			"reservationId":    r.ID,
			"minutesRemaining": fmt.Sprint(minutes),
		},
	}
	if err := w.notifier.Notify(ctx, n); err != nil {
		w.metrics.NotificationFailed("reminder")
		log.Warn("payment reminder not delivered", zap.Error(err))
		return scheduler.OutcomeCompleted, nil
	}
	log.Info("payment reminder sent", zap.Int("minutesRemaining", minutes))
	return scheduler.OutcomeCompleted, nil
}

// plural returns "s" if n is not 1, otherwise returns an empty string.
func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
