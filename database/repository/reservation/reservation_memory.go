package reservationRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"voltslot/models"
)

// MemoryReservationRepo is an in-process ReservationRepository. A single mutex
// makes check-and-insert and compare-and-set atomic.
type MemoryReservationRepo struct {
	mu   sync.Mutex
	byID map[string]*models.Reservation
	qr   map[string]string
}

func NewMemoryReservationRepo() *MemoryReservationRepo {
	return &MemoryReservationRepo{
		byID: make(map[string]*models.Reservation),
		qr:   make(map[string]string),
	}
}

func (m *MemoryReservationRepo) blockingLocked(connectorID string, window models.Interval) []models.Reservation {
	var out []models.Reservation
	for _, r := range m.byID {
		if r.ConnectorID != connectorID || !r.Status.IsBlocking() {
			continue
		}
		if r.Interval().Overlaps(window) {
			out = append(out, *r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (m *MemoryReservationRepo) InsertIfNoOverlap(ctx context.Context, r *models.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if conflicts := m.blockingLocked(r.ConnectorID, r.Interval()); len(conflicts) > 0 {
		return &OverlapError{Conflicts: conflicts}
	}
	if _, taken := m.qr[r.QRCode]; taken {
		return ErrDuplicateQRCode
	}
	if r.History == nil {
		r.History = []models.StatusChange{}
	}
	m.byID[r.ID] = r.Clone()
	m.qr[r.QRCode] = r.ID
	return nil
}

func (m *MemoryReservationRepo) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryReservationRepo) FindBlocking(ctx context.Context, connectorID string, start, end time.Time) ([]models.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockingLocked(connectorID, models.Interval{Start: start, End: end}), nil
}

func (m *MemoryReservationRepo) QRCodeExists(ctx context.Context, qrCode string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.qr[qrCode]
	return ok, nil
}

func (m *MemoryReservationRepo) CompareAndSet(ctx context.Context, u StatusUpdate) (*models.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.byID[u.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != u.ExpectStatus || (u.ExpectUnpaid && r.IsPaid) {
		return nil, ErrPreconditionFailed
	}
	applyUpdate(r, u)
	return r.Clone(), nil
}

func (m *MemoryReservationRepo) SetJobIDs(ctx context.Context, id, expiryJobID, reminderJobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	r.ExpiryJobID = expiryJobID
	r.ReminderJobID = reminderJobID
	return nil
}

func (m *MemoryReservationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Reservation
	for _, r := range m.byID {
		if r.UserID == userID {
			out = append(out, *r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryReservationRepo) ListOverdueUnpaid(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Reservation
	for _, r := range m.byID {
		if r.Status == models.StatusPending && !r.IsPaid && !r.PaymentDeadline.After(now) {
			out = append(out, *r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentDeadline.Before(out[j].PaymentDeadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
