package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	directoryRepo "voltslot/database/repository/directory"
	reservationRepo "voltslot/database/repository/reservation"
	"voltslot/models"
	"voltslot/services/scheduler"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// 10:00 in Asia/Dhaka.
var baseNow = time.Date(2025, 3, 10, 4, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type memorySlotCache struct {
	mu          sync.Mutex
	entries     map[string][]models.AvailableSlot
	byConnector map[string][]string
	generations map[string]int64
	invalidated int
}

func newMemorySlotCache() *memorySlotCache {
	return &memorySlotCache{
		entries:     map[string][]models.AvailableSlot{},
		byConnector: map[string][]string{},
		generations: map[string]int64{},
	}
}

func (c *memorySlotCache) Generation(_ context.Context, connectorID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[connectorID]
}

func (c *memorySlotCache) Get(_ context.Context, key string) ([]models.AvailableSlot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *memorySlotCache) Set(_ context.Context, connectorID, key string, slots []models.AvailableSlot, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = slots
	c.byConnector[connectorID] = append(c.byConnector[connectorID], key)
}

func (c *memorySlotCache) Invalidate(_ context.Context, connectorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.byConnector[connectorID] {
		delete(c.entries, k)
	}
	delete(c.byConnector, connectorID)
	c.generations[connectorID]++
	c.invalidated++
}

type failingScheduler struct {
	*scheduler.MemoryScheduler
}

func (failingScheduler) ScheduleAt(context.Context, scheduler.JobKind, string, time.Time) (string, bool, error) {
	return "", false, context.DeadlineExceeded
}

type fixture struct {
	svc      *Service
	repo     *reservationRepo.MemoryReservationRepo
	dir      *directoryRepo.MemoryDirectory
	sched    *scheduler.MemoryScheduler
	notifier *recordingNotifier
	cache    *memorySlotCache

	mu  sync.Mutex
	now time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func testPolicy() Policy {
	loc, _ := time.LoadLocation("Asia/Dhaka")
	return Policy{
		GracePeriod:           10 * time.Minute,
		ReminderLead:          5 * time.Minute,
		CancellationCutoff:    time.Hour,
		MaxDuration:           4 * time.Hour,
		MaxAdvance:            7 * 24 * time.Hour,
		OperatingStartHour:    6,
		OperatingEndHour:      23,
		Location:              loc,
		SlotMinutes:           30,
		SlotCacheTTL:          30 * time.Second,
		CredentialMaxAttempts: 5,
	}
}

func newFixture(t *testing.T, mutate ...func(*Deps, *Policy)) *fixture {
	t.Helper()
	f := &fixture{
		repo:     reservationRepo.NewMemoryReservationRepo(),
		dir:      directoryRepo.NewMemoryDirectory(),
		sched:    scheduler.NewMemoryScheduler(scheduler.Options{}),
		notifier: &recordingNotifier{},
		cache:    newMemorySlotCache(),
		now:      baseNow,
	}

	f.dir.PutStation(models.Station{
		ID:         "st-1",
		Name:       "Gulshan Hub",
		OperatorID: "op-1",
		Connectors: []models.Connector{
			{ID: "c-1", Standard: "CCS2", MaxPowerKW: 50, PricePerKWh: 25, Status: models.ConnectorAvailable},
			{ID: "c-2", Standard: "CHADEMO", MaxPowerKW: 50, PricePerKWh: 25, Status: models.ConnectorAvailable},
			{ID: "c-3", Standard: "CCS2", MaxPowerKW: 22, PricePerKWh: 20, Status: models.ConnectorMaintenance},
		},
	})
	f.dir.PutVehicle(models.Vehicle{ID: "v-1", OwnerID: "u-1", Model: "Ioniq 5", ConnectorStandards: []string{"CCS2", "TYPE2"}, UsableBatteryKWh: 60})
	f.dir.PutVehicle(models.Vehicle{ID: "v-2", OwnerID: "u-2", Model: "Leaf", ConnectorStandards: []string{"CCS2"}, UsableBatteryKWh: 40})
	f.dir.PutUser(models.User{ID: "u-1", Email: "rafi@example.com", Name: "Rafi", FCMToken: "tok-1"})
	f.dir.PutUser(models.User{ID: "u-2", Email: "nila@example.com", Name: "Nila"})

	deps := Deps{
		Repo:      f.repo,
		Stations:  f.dir,
		Vehicles:  f.dir,
		Users:     f.dir,
		Scheduler: f.sched,
		Cache:     f.cache,
		Notifier:  f.notifier,
		Logger:    zap.NewNop(),
	}
	policy := testPolicy()
	for _, m := range mutate {
		m(&deps, &policy)
	}

	f.svc = NewService(deps, policy)
	f.svc.SetClock(f.clock)
	return f
}

func (f *fixture) request(connectorID string, start, end time.Time) models.CreateReservationRequest {
	return models.CreateReservationRequest{VehicleID: "v-1", StationID: "st-1", ConnectorID: connectorID, Start: start, End: end}
}

// book creates a reservation for u-1 on c-1 and fails the test on error.
func (f *fixture) book(t *testing.T, start, end time.Time) *models.Reservation {
	t.Helper()
	r, err := f.svc.CreateReservation(context.Background(), "u-1", f.request("c-1", start, end))
	require.NoError(t, err)
	return r
}

// seed stores a reservation directly in the given status.
func (f *fixture) seed(t *testing.T, id string, status models.ReservationStatus, start time.Time) *models.Reservation {
	t.Helper()
	r := &models.Reservation{
		ID:              id,
		UserID:          "u-1",
		VehicleID:       "v-1",
		StationID:       "st-1",
		ConnectorID:     "seed-" + id,
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		Status:          status,
		QRCode:          "EVR-" + id,
		OTP:             "123456",
		PaymentDeadline: f.clock().Add(10 * time.Minute),
		CreatedAt:       f.clock(),
		UpdatedAt:       f.clock(),
	}
	require.NoError(t, f.repo.InsertIfNoOverlap(context.Background(), r))
	return r
}

func (f *fixture) status(t *testing.T, id string) models.ReservationStatus {
	t.Helper()
	r, err := f.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return r.Status
}

var (
	user1    = models.Actor{ID: "u-1", Role: models.RoleUser}
	user2    = models.Actor{ID: "u-2", Role: models.RoleUser}
	operator = models.Actor{ID: "op-1", Role: models.RoleOperator}
	system   = models.SystemActor("test")
)
