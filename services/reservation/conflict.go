package reservation

import (
	"context"
	"time"

	reservationRepo "voltslot/database/repository/reservation"
	"voltslot/models"
)

// Overlaps is the half-open interval test: [aStart,aEnd) and [bStart,bEnd)
// share an instant iff aStart < bEnd && bStart < aEnd.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Conflicts returns the windows of the blocking reservations that overlap
// [start, end), skipping excludeID. Non-blocking statuses are ignored.
func Conflicts(reservations []models.Reservation, start, end time.Time, excludeID string) []models.Interval {
	out := []models.Interval{}
	for _, r := range reservations {
		if r.ID == excludeID || !r.Status.IsBlocking() {
			continue
		}
		if Overlaps(r.StartTime, r.EndTime, start, end) {
			out = append(out, r.Interval())
		}
	}
	return out
}

func validateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return newValidationError("start", "start and end are required")
	}
	if !end.After(start) {
		return newValidationError("end", "end must be after start")
	}
	return nil
}

// Detector answers availability questions against the reservation store.
type Detector struct {
	repo reservationRepo.ReservationRepository
}

func NewDetector(repo reservationRepo.ReservationRepository) *Detector {
	return &Detector{repo: repo}
}

// FindConflicts lists blocking windows on the connector that overlap [start, end).
func (d *Detector) FindConflicts(ctx context.Context, connectorID string, start, end time.Time) ([]models.Interval, error) {
	return d.conflicts(ctx, connectorID, start, end, "")
}

// IsAvailable reports whether [start, end) is free on the connector, ignoring
// excludeReservationID (used when re-checking an existing booking).
func (d *Detector) IsAvailable(ctx context.Context, connectorID string, start, end time.Time, excludeReservationID string) (bool, []models.Interval, error) {
	conflicts, err := d.conflicts(ctx, connectorID, start, end, excludeReservationID)
	if err != nil {
		return false, nil, err
	}
	return len(conflicts) == 0, conflicts, nil
}

func (d *Detector) conflicts(ctx context.Context, connectorID string, start, end time.Time, excludeID string) ([]models.Interval, error) {
	if connectorID == "" {
		return nil, newValidationError("connectorId", "connectorId is required")
	}
	if err := validateWindow(start, end); err != nil {
		return nil, err
	}
	blocking, err := d.repo.FindBlocking(ctx, connectorID, start, end)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "find blocking reservations", Err: err}
	}
	return Conflicts(blocking, start, end, excludeID), nil
}
