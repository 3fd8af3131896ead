package reservation

import (
	"context"
	"testing"
	"time"

	"voltslot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time {
	return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name         string
		aStart, aEnd time.Time
		bStart, bEnd time.Time
		want         bool
	}{
		{"touching end to start", at(10, 0), at(10, 30), at(10, 30), at(11, 0), false},
		{"touching start to end", at(10, 30), at(11, 0), at(10, 0), at(10, 30), false},
		{"partial overlap", at(14, 0), at(14, 30), at(14, 15), at(14, 45), true},
		{"contained", at(9, 0), at(12, 0), at(10, 0), at(10, 15), true},
		{"identical", at(9, 0), at(10, 0), at(9, 0), at(10, 0), true},
		{"disjoint", at(9, 0), at(10, 0), at(11, 0), at(12, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
			assert.Equal(t, tt.want, Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd), "symmetry")
		})
	}
}

func TestConflictsFiltersStatusesAndExclusion(t *testing.T) {
	existing := []models.Reservation{
		{ID: "pending", Status: models.StatusPending, StartTime: at(10, 0), EndTime: at(11, 0)},
		{ID: "canceled", Status: models.StatusCanceled, StartTime: at(10, 0), EndTime: at(11, 0)},
		{ID: "expired", Status: models.StatusExpired, StartTime: at(10, 0), EndTime: at(11, 0)},
		{ID: "checked-in", Status: models.StatusCheckedIn, StartTime: at(10, 30), EndTime: at(11, 30)},
		{ID: "later", Status: models.StatusConfirmed, StartTime: at(12, 0), EndTime: at(13, 0)},
	}

	got := Conflicts(existing, at(10, 15), at(12, 0), "")
	assert.Equal(t, []models.Interval{
		{Start: at(10, 0), End: at(11, 0)},
		{Start: at(10, 30), End: at(11, 30)},
	}, got)

	got = Conflicts(existing, at(10, 15), at(12, 0), "pending")
	assert.Equal(t, []models.Interval{{Start: at(10, 30), End: at(11, 30)}}, got)

	assert.Empty(t, Conflicts(existing, at(13, 0), at(14, 0), ""))
}

func TestDetectorValidatesWindow(t *testing.T) {
	f := newFixture(t)
	d := f.svc.Detector()

	_, err := d.FindConflicts(context.Background(), "c-1", at(11, 0), at(10, 0))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "end", vErr.Field)

	_, _, err = d.IsAvailable(context.Background(), "", at(10, 0), at(11, 0), "")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "connectorId", vErr.Field)
}

func TestDetectorIgnoresOtherConnectors(t *testing.T) {
	f := newFixture(t)
	start := baseNow.Add(2 * time.Hour)
	f.book(t, start, start.Add(time.Hour))

	ok, conflicts, err := f.svc.Detector().IsAvailable(context.Background(), "c-2", start, start.Add(time.Hour), "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, conflicts)
}
