package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	directoryRepo "voltslot/database/repository/directory"
	reservationRepo "voltslot/database/repository/reservation"
	"voltslot/metrics"
	"voltslot/models"
	"voltslot/services/notification"
	"voltslot/services/scheduler"

	"go.uber.org/zap"
)

// Result is the outcome of a lifecycle request. Applied is false when the
// request was an idempotent no-op.
type Result struct {
	Reservation *models.Reservation
	Applied     bool
}

// Manager owns every status change of a reservation.
type Manager struct {
	repo     reservationRepo.ReservationRepository
	sched    scheduler.Scheduler
	cache    SlotCache
	notifier notification.Notifier
	users    directoryRepo.UserDirectory
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cutoff   time.Duration
	now      func() time.Time
}

func newManager(deps Deps, cutoff time.Duration) *Manager {
	return &Manager{
		repo:     deps.Repo,
		sched:    deps.Scheduler,
		cache:    deps.Cache,
		notifier: deps.Notifier,
		users:    deps.Users,
		metrics:  deps.Metrics,
		logger:   deps.Logger.Named("lifecycle"),
		cutoff:   cutoff,
		now:      time.Now,
	}
}

func (m *Manager) load(ctx context.Context, id string) (*models.Reservation, error) {
	r, err := m.repo.GetByID(ctx, id)
	if errors.Is(err, reservationRepo.ErrNotFound) {
		return nil, &NotFoundError{Entity: "reservation", ID: id}
	}
	if err != nil {
		return nil, &StoreUnavailableError{Op: "load reservation", Err: err}
	}
	return r, nil
}

// authorize enforces ownership and role rules for a requested target.
func (m *Manager) authorize(r *models.Reservation, target models.ReservationStatus, actor models.Actor) error {
	switch actor.Role {
	case models.RoleSystem:
	case models.RoleOperator:
	case models.RoleUser:
		if r.UserID != actor.ID {
			return &AccessDeniedError{Reason: "reservation belongs to another user"}
		}
		if target != models.StatusCanceled {
			return &AccessDeniedError{Reason: fmt.Sprintf("users cannot move a reservation to %s", target)}
		}
	default:
		return &AccessDeniedError{Reason: "unknown role"}
	}
	if operatorOnly(r.Status, target) && !actor.IsOperator() {
		return &AccessDeniedError{Reason: fmt.Sprintf("only operators may move %s to %s", r.Status, target)}
	}
	return nil
}

// Transition moves the reservation to target on behalf of actor. A lost
// compare-and-set re-reads and re-evaluates once.
func (m *Manager) Transition(ctx context.Context, id string, target models.ReservationStatus, actor models.Actor, reason string) (Result, error) {
	if !target.Valid() {
		return Result{}, newValidationError("status", "unknown status %q", target)
	}

	for attempt := 0; attempt < 2; attempt++ {
		r, err := m.load(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if r.Status == target && actor.IsSystem() {
			return Result{Reservation: r}, nil
		}
		// Non-owners are denied before the table check; the error must not reveal the status.
		if actor.Role == models.RoleUser && r.UserID != actor.ID {
			return Result{}, &AccessDeniedError{Reason: "reservation belongs to another user"}
		}
		if !CanTransition(r.Status, target) {
			return Result{}, &InvalidTransitionError{Current: r.Status, Target: target}
		}
		if err := m.authorize(r, target, actor); err != nil {
			return Result{}, err
		}

		now := m.now().UTC()
		if target == models.StatusCanceled && actor.Role == models.RoleUser && r.StartTime.Sub(now) < m.cutoff {
			return Result{}, &CancellationWindowClosedError{StartTime: r.StartTime, Cutoff: m.cutoff}
		}

		updated, err := m.repo.CompareAndSet(ctx, reservationRepo.StatusUpdate{
			ID:           r.ID,
			ExpectStatus: r.Status,
			ExpectUnpaid: target == models.StatusExpired,
			SetStatus:    target,
			CancelReason: reason,
			Actor:        actor.String(),
			At:           now,
		})
		if errors.Is(err, reservationRepo.ErrPreconditionFailed) {
			m.logger.Debug("transition lost race, re-evaluating",
				zap.String("reservationId", id), zap.String("target", string(target)))
			continue
		}
		if errors.Is(err, reservationRepo.ErrNotFound) {
			return Result{}, &NotFoundError{Entity: "reservation", ID: id}
		}
		if err != nil {
			return Result{}, &StoreUnavailableError{Op: "update reservation status", Err: err}
		}

		m.afterTransition(ctx, r.Status, updated, actor)
		return Result{Reservation: updated, Applied: true}, nil
	}

	return Result{}, &StoreUnavailableError{Op: "update reservation status", Err: reservationRepo.ErrPreconditionFailed}
}

func (m *Manager) Confirm(ctx context.Context, id string, actor models.Actor) (Result, error) {
	return m.Transition(ctx, id, models.StatusConfirmed, actor, "")
}

func (m *Manager) Cancel(ctx context.Context, id string, actor models.Actor, reason string) (Result, error) {
	return m.Transition(ctx, id, models.StatusCanceled, actor, reason)
}

func (m *Manager) Complete(ctx context.Context, id string, actor models.Actor) (Result, error) {
	return m.Transition(ctx, id, models.StatusCompleted, actor, "")
}

// Expire voids an unpaid PENDING reservation. Safe to call repeatedly.
func (m *Manager) Expire(ctx context.Context, id string) (Result, error) {
	return m.Transition(ctx, id, models.StatusExpired, models.SystemActor("expiry-worker"), "")
}

// CheckIn validates the presented QR token or OTP and moves the reservation to CHECKED_IN.
func (m *Manager) CheckIn(ctx context.Context, id string, actor models.Actor, qrCode, otp string) (Result, error) {
	if !actor.IsOperator() {
		return Result{}, &AccessDeniedError{Reason: "check-in requires an operator"}
	}
	if qrCode == "" && otp == "" {
		return Result{}, newValidationError("credential", "qrCode or otp is required")
	}

	r, err := m.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !CanTransition(r.Status, models.StatusCheckedIn) {
		return Result{}, &InvalidTransitionError{Current: r.Status, Target: models.StatusCheckedIn}
	}
	valid := secretEqual(qrCode, r.QRCode)
	if !valid && otp != "" {
		valid = secretEqual(otp, r.OTP)
	}
	if !valid {
		m.logger.Warn("check-in credential rejected", zap.String("reservationId", id), zap.String("actor", actor.String()))
		return Result{}, &InvalidCredentialError{}
	}
	return m.Transition(ctx, id, models.StatusCheckedIn, actor, "")
}

// ConfirmPayment applies a payment report. Paying a PENDING reservation
// confirms it; paying a reservation that already ended is recorded as a late
// payment and changes nothing.
func (m *Manager) ConfirmPayment(ctx context.Context, id string, paid bool) (Result, error) {
	actor := models.SystemActor("payment")
	log := m.logger.With(zap.String("reservationId", id))

	if !paid {
		r, err := m.load(ctx, id)
		if err != nil {
			return Result{}, err
		}
		log.Info("payment reported as not paid", zap.String("status", string(r.Status)))
		return Result{Reservation: r}, nil
	}

	for attempt := 0; attempt < 2; attempt++ {
		r, err := m.load(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if r.IsPaid {
			return Result{Reservation: r}, nil
		}
		if r.Status.IsTerminal() {
			log.Warn("late payment for ended reservation", zap.String("status", string(r.Status)))
			m.metrics.LatePayment()
			return Result{Reservation: r}, nil
		}

		update := reservationRepo.StatusUpdate{
			ID:           r.ID,
			ExpectStatus: r.Status,
			ExpectUnpaid: true,
			SetPaid:      true,
			Actor:        actor.String(),
			At:           m.now().UTC(),
		}
		if r.Status == models.StatusPending {
			update.SetStatus = models.StatusConfirmed
		}

		updated, err := m.repo.CompareAndSet(ctx, update)
		if errors.Is(err, reservationRepo.ErrPreconditionFailed) {
			continue
		}
		if errors.Is(err, reservationRepo.ErrNotFound) {
			return Result{}, &NotFoundError{Entity: "reservation", ID: id}
		}
		if err != nil {
			return Result{}, &StoreUnavailableError{Op: "record payment", Err: err}
		}

		log.Info("payment recorded", zap.String("status", string(updated.Status)))
		if updated.Status != r.Status {
			m.afterTransition(ctx, r.Status, updated, actor)
		}
		return Result{Reservation: updated, Applied: true}, nil
	}

	return Result{}, &StoreUnavailableError{Op: "record payment", Err: reservationRepo.ErrPreconditionFailed}
}

// afterTransition runs the best-effort side effects of an applied change.
func (m *Manager) afterTransition(ctx context.Context, from models.ReservationStatus, r *models.Reservation, actor models.Actor) {
	m.metrics.Transition(string(from), string(r.Status))
	m.logger.Info("reservation transitioned",
		zap.String("reservationId", r.ID),
		zap.String("from", string(from)),
		zap.String("to", string(r.Status)),
		zap.String("actor", actor.String()),
	)

	// Jobs guarding the payment deadline are moot once the reservation leaves PENDING.
	if from == models.StatusPending {
		if r.Status != models.StatusExpired {
			m.cancelJob(ctx, r.ExpiryJobID, scheduler.JobID(scheduler.KindExpiry, r.ID))
		}
		m.cancelJob(ctx, r.ReminderJobID, scheduler.JobID(scheduler.KindReminder, r.ID))
	}
	if !r.Status.IsBlocking() {
		m.cache.Invalidate(ctx, r.ConnectorID)
	}
	if r.Status == models.StatusExpired {
		m.notifyExpired(ctx, r)
	}
}

func (m *Manager) cancelJob(ctx context.Context, jobID, fallback string) {
	if m.sched == nil {
		return
	}
	if jobID == "" {
		jobID = fallback
	}
	if err := m.sched.Cancel(ctx, jobID); err != nil {
		m.logger.Debug("could not cancel job", zap.String("jobId", jobID), zap.Error(err))
	}
}

func (m *Manager) notifyExpired(ctx context.Context, r *models.Reservation) {
	n, err := buildNotification(ctx, m.users, r.UserID)
	if err != nil {
		m.logger.Warn("expiry notification skipped", zap.String("reservationId", r.ID), zap.Error(err))
		return
	}
	n.Subject = "Reservation expired"
	n.Body = fmt.Sprintf("Your reservation for %s was not paid by %s and has expired. The slot has been released.",
		r.StartTime.Format(time.RFC1123), r.PaymentDeadline.Format(time.Kitchen))
	n.Data = map[string]string{"type": "reservation_expired", "reservationId": r.ID}
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.metrics.NotificationFailed("expiry")
		m.logger.Warn("expiry notification failed", zap.String("reservationId", r.ID), zap.Error(err))
	}
}

// buildNotification resolves the user's contact details.
func buildNotification(ctx context.Context, users directoryRepo.UserDirectory, userID string) (models.Notification, error) {
	u, err := users.GetUser(ctx, userID)
	if err != nil {
		return models.Notification{}, fmt.Errorf("lookup user %s: %w", userID, err)
	}
	return models.Notification{Email: u.Email, PushToken: u.FCMToken}, nil
}
