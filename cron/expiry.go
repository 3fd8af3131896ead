package cron

import (
	"context"
	"errors"
	"time"

	reservationRepo "voltslot/database/repository/reservation"
	"voltslot/models"
	"voltslot/services/reservation"
	"voltslot/services/scheduler"

	"go.uber.org/zap"
)

// ExpiryWorker voids reservations whose payment deadline passed unpaid.
type ExpiryWorker struct {
	repo    reservationRepo.ReservationRepository
	manager *reservation.Manager
	logger  *zap.Logger
	now     func() time.Time
}

func NewExpiryWorker(repo reservationRepo.ReservationRepository, manager *reservation.Manager, logger *zap.Logger) *ExpiryWorker {
	return &ExpiryWorker{repo: repo, manager: manager, logger: logger.Named("expiry-worker"), now: time.Now}
}

func (w *ExpiryWorker) Handle(ctx context.Context, job scheduler.Job) (scheduler.Outcome, error) {
	log := w.logger.With(zap.String("reservationId", job.ReservationID), zap.String("jobId", job.ID))

	r, err := w.repo.GetByID(ctx, job.ReservationID)
	if errors.Is(err, reservationRepo.ErrNotFound) {
		log.Warn("reservation vanished before expiry check")
		return scheduler.OutcomeSkipped, nil
	}
	if err != nil {
		return "", err
	}
	if skip, reason := expirySkip(r, w.now()); skip {
		log.Debug("expiry skipped", zap.String("reason", reason))
		return scheduler.OutcomeSkipped, nil
	}

	res, err := w.manager.Expire(ctx, r.ID)
	var inv *reservation.InvalidTransitionError
	switch {
	case errors.As(err, &inv):
		// Payment or a cancel won the race.
		log.Info("expiry lost race", zap.String("status", string(inv.Current)))
		return scheduler.OutcomeSkipped, nil
	case reservation.IsNotFound(err):
		return scheduler.OutcomeSkipped, nil
	case err != nil:
		return "", err
	}
	if !res.Applied {
		return scheduler.OutcomeSkipped, nil
	}
	log.Info("reservation expired", zap.String("connectorId", r.ConnectorID))
	return scheduler.OutcomeCompleted, nil
}

func expirySkip(r *models.Reservation, now time.Time) (bool, string) {
	switch {
	case r.IsPaid:
		return true, "paid"
	case r.Status.IsTerminal():
		return true, "terminal"
	case r.Status != models.StatusPending:
		return true, "not pending"
	case now.Before(r.PaymentDeadline):
		return true, "deadline not reached"
	}
	return false, ""
}
