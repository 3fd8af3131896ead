package reservationRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voltslot/models"
)

var (
	// ErrNotFound is returned when no reservation has the requested id.
	ErrNotFound = errors.New("reservation not found")
	// ErrDuplicateQRCode is returned when an insert collides on the unique qrCode index.
	ErrDuplicateQRCode = errors.New("duplicate reservation qr code")
	// ErrPreconditionFailed is returned when a compare-and-set finds the record changed.
	ErrPreconditionFailed = errors.New("reservation precondition failed")
)

// OverlapError is returned by InsertIfNoOverlap when a blocking reservation
// on the same connector already covers part of the window.
type OverlapError struct {
	Conflicts []models.Reservation
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("reservation overlaps %d blocking reservation(s)", len(e.Conflicts))
}

// StatusUpdate is a conditional write: it applies only when the stored record
// still has ExpectStatus (and, with ExpectUnpaid, isPaid=false).
type StatusUpdate struct {
	ID           string
	ExpectStatus models.ReservationStatus
	ExpectUnpaid bool

	// SetStatus is left empty to keep the current status.
	SetStatus    models.ReservationStatus
	SetPaid      bool
	CancelReason string
	Actor        string
	At           time.Time
}

// ReservationRepository persists reservations and owns the authoritative status.
type ReservationRepository interface {
	// InsertIfNoOverlap atomically inserts r unless a blocking reservation on
	// r.ConnectorID overlaps [r.StartTime, r.EndTime). Returns *OverlapError or
	// ErrDuplicateQRCode on rejection.
	InsertIfNoOverlap(ctx context.Context, r *models.Reservation) error
	GetByID(ctx context.Context, id string) (*models.Reservation, error)
	// FindBlocking returns blocking reservations on the connector overlapping [start, end), by start time.
	FindBlocking(ctx context.Context, connectorID string, start, end time.Time) ([]models.Reservation, error)
	QRCodeExists(ctx context.Context, qrCode string) (bool, error)
	CompareAndSet(ctx context.Context, u StatusUpdate) (*models.Reservation, error)
	SetJobIDs(ctx context.Context, id, expiryJobID, reminderJobID string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Reservation, error)
	// ListOverdueUnpaid returns PENDING unpaid reservations whose deadline is at or before now.
	ListOverdueUnpaid(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
}

// applyUpdate mutates r in place according to u. Shared by both backends so
// the audit fields are stamped identically.
func applyUpdate(r *models.Reservation, u StatusUpdate) {
	at := u.At
	if u.SetPaid {
		r.IsPaid = true
	}
	if u.SetStatus != "" && u.SetStatus != r.Status {
		r.History = append(r.History, models.StatusChange{From: r.Status, To: u.SetStatus, At: at, Actor: u.Actor})
		r.Status = u.SetStatus
		switch u.SetStatus {
		case models.StatusCheckedIn:
			r.CheckedInAt = &at
		case models.StatusCompleted:
			r.CompletedAt = &at
		case models.StatusCanceled:
			r.CanceledAt = &at
			r.CancelReason = u.CancelReason
		}
	}
	r.UpdatedAt = at
}
