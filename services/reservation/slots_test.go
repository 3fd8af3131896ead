package reservation

import (
	"context"
	"testing"
	"time"

	reservationRepo "voltslot/database/repository/reservation"
	"voltslot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAvailableSlots(t *testing.T) {
	f := newFixture(t)
	// 12:00-13:00 in Asia/Dhaka.
	start := baseNow.Add(2 * time.Hour)
	f.book(t, start, start.Add(time.Hour))

	slots, err := f.svc.ListAvailableSlots(context.Background(), "c-1", "2025-03-10", 0)
	require.NoError(t, err)

	require.Len(t, slots, 34)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), slots[0].Start)
	assert.Equal(t, time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC), slots[33].End)

	for i, s := range slots {
		assert.Equal(t, 30*time.Minute, s.End.Sub(s.Start))
		booked := i == 12 || i == 13
		assert.Equal(t, !booked, s.Available, "slot %d starting %s", i, s.Start)
	}
}

func TestListAvailableSlotsDropsPartialSlot(t *testing.T) {
	f := newFixture(t)

	slots, err := f.svc.ListAvailableSlots(context.Background(), "c-1", "2025-03-10", 45)
	require.NoError(t, err)

	// 17 operating hours = 1020 minutes = 22 full 45-minute slots.
	require.Len(t, slots, 22)
	assert.Equal(t, time.Date(2025, 3, 10, 16, 30, 0, 0, time.UTC), slots[21].End)
}

func TestListAvailableSlotsValidation(t *testing.T) {
	f := newFixture(t)
	var vErr *ValidationError

	_, err := f.svc.ListAvailableSlots(context.Background(), "c-1", "10/03/2025", 30)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "date", vErr.Field)

	_, err = f.svc.ListAvailableSlots(context.Background(), "c-1", "2025-03-10", 18*60)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "slotMinutes", vErr.Field)

	// Large enough to overflow a Duration once converted to minutes.
	_, err = f.svc.ListAvailableSlots(context.Background(), "c-1", "2025-03-10", 153722868)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "slotMinutes", vErr.Field)

	slots, err := f.svc.ListAvailableSlots(context.Background(), "c-1", "2025-03-10", 17*60)
	require.NoError(t, err)
	assert.Len(t, slots, 1)

	_, err = f.svc.ListAvailableSlots(context.Background(), "", "2025-03-10", 30)
	require.ErrorAs(t, err, &vErr)

	_, err = f.svc.ListAvailableSlots(context.Background(), "c-404", "2025-03-10", 30)
	assert.True(t, IsNotFound(err))
}

func TestListAvailableSlotsCacheInvalidatedByBooking(t *testing.T) {
	f := newFixture(t)

	slots, err := f.svc.ListAvailableSlots(context.Background(), "c-1", "2025-03-10", 30)
	require.NoError(t, err)
	require.True(t, slots[12].Available)

	_, cached := f.cache.Get(context.Background(), slotCacheKey("c-1", 0, "2025-03-10", 30))
	assert.True(t, cached)

	start := baseNow.Add(2 * time.Hour)
	f.book(t, start, start.Add(30*time.Minute))

	_, cached = f.cache.Get(context.Background(), slotCacheKey("c-1", 0, "2025-03-10", 30))
	assert.False(t, cached)

	slots, err = f.svc.ListAvailableSlots(context.Background(), "c-1", "2025-03-10", 30)
	require.NoError(t, err)
	assert.False(t, slots[12].Available)
}

// slowReadRepo runs onRead once, after the blocking set has been read.
type slowReadRepo struct {
	*reservationRepo.MemoryReservationRepo
	onRead func()
}

func (r *slowReadRepo) FindBlocking(ctx context.Context, connectorID string, start, end time.Time) ([]models.Reservation, error) {
	out, err := r.MemoryReservationRepo.FindBlocking(ctx, connectorID, start, end)
	if hook := r.onRead; hook != nil {
		r.onRead = nil
		hook()
	}
	return out, err
}

func TestListAvailableSlotsIgnoresListingComputedAcrossBooking(t *testing.T) {
	repo := &slowReadRepo{}
	f := newFixture(t, func(d *Deps, _ *Policy) {
		repo.MemoryReservationRepo = d.Repo.(*reservationRepo.MemoryReservationRepo)
		d.Repo = repo
	})
	start := baseNow.Add(2 * time.Hour)
	repo.onRead = func() { f.book(t, start, start.Add(30*time.Minute)) }

	stale, err := f.svc.ListAvailableSlots(context.Background(), "c-1", "2025-03-10", 30)
	require.NoError(t, err)
	assert.True(t, stale[12].Available)

	slots, err := f.svc.ListAvailableSlots(context.Background(), "c-1", "2025-03-10", 30)
	require.NoError(t, err)
	assert.False(t, slots[12].Available)
}
