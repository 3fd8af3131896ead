package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voltslot/config"
	directoryRepo "voltslot/database/repository/directory"
	reservationRepo "voltslot/database/repository/reservation"
	"voltslot/metrics"
	"voltslot/models"
	"voltslot/services/notification"
	"voltslot/services/scheduler"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Policy holds the tunable booking rules.
type Policy struct {
	GracePeriod           time.Duration
	ReminderLead          time.Duration
	CancellationCutoff    time.Duration
	MaxDuration           time.Duration
	MaxAdvance            time.Duration
	OperatingStartHour    int
	OperatingEndHour      int
	Location              *time.Location
	SlotMinutes           int
	SlotCacheTTL          time.Duration
	CredentialMaxAttempts int
}

// MaxSlotMinutes is the length of the daily operating window in minutes.
func (p Policy) MaxSlotMinutes() int {
	return (p.OperatingEndHour - p.OperatingStartHour) * 60
}

// PolicyFromConfig copies the reservation settings out of the loaded config.
func PolicyFromConfig(cfg config.Config) Policy {
	return Policy{
		GracePeriod:           cfg.PaymentGracePeriod,
		ReminderLead:          cfg.ReminderLead,
		CancellationCutoff:    cfg.CancellationCutoff,
		MaxDuration:           cfg.MaxReservationDuration,
		MaxAdvance:            cfg.MaxAdvanceBooking,
		OperatingStartHour:    cfg.OperatingStartHour,
		OperatingEndHour:      cfg.OperatingEndHour,
		Location:              cfg.Location(),
		SlotMinutes:           cfg.SlotDurationMinutes,
		SlotCacheTTL:          cfg.SlotCacheTTL,
		CredentialMaxAttempts: cfg.CredentialMaxAttempts,
	}
}

// Deps are the collaborators of the reservation service.
type Deps struct {
	Repo      reservationRepo.ReservationRepository
	Stations  directoryRepo.StationDirectory
	Vehicles  directoryRepo.VehicleDirectory
	Users     directoryRepo.UserDirectory
	Scheduler scheduler.Scheduler
	Cache     SlotCache
	Notifier  notification.Notifier
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Service is the booking entry point: it validates and creates reservations,
// answers availability queries and exposes the lifecycle Manager.
type Service struct {
	repo     reservationRepo.ReservationRepository
	stations directoryRepo.StationDirectory
	vehicles directoryRepo.VehicleDirectory
	sched    scheduler.Scheduler
	cache    SlotCache
	metrics  *metrics.Metrics
	logger   *zap.Logger
	policy   Policy

	detector *Detector
	issuer   *Issuer
	manager  *Manager
	now      func() time.Time
}

func NewService(deps Deps, policy Policy) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Cache == nil {
		deps.Cache = NopSlotCache{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notification.NewLogNotifier(deps.Logger)
	}
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	return &Service{
		repo:     deps.Repo,
		stations: deps.Stations,
		vehicles: deps.Vehicles,
		sched:    deps.Scheduler,
		cache:    deps.Cache,
		metrics:  deps.Metrics,
		logger:   deps.Logger.Named("reservation"),
		policy:   policy,
		detector: NewDetector(deps.Repo),
		issuer:   NewIssuer(deps.Repo, policy.CredentialMaxAttempts),
		manager:  newManager(deps, policy.CancellationCutoff),
		now:      time.Now,
	}
}

// SetClock replaces the time source of the service and its manager.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.manager.now = now
}

func (s *Service) Manager() *Manager   { return s.manager }
func (s *Service) Detector() *Detector { return s.detector }
func (s *Service) Policy() Policy      { return s.policy }

// CreateReservation books [req.Start, req.End) on a connector for userID.
// The reservation starts PENDING with a payment deadline of now+grace.
func (s *Service) CreateReservation(ctx context.Context, userID string, req models.CreateReservationRequest) (*models.Reservation, error) {
	now := s.now().UTC()
	start, end := req.Start.UTC(), req.End.UTC()

	if err := s.validateRequest(userID, req, start, end, now); err != nil {
		return nil, err
	}

	_, connector, vehicle, err := s.resolve(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	conflicts, err := s.detector.FindConflicts(ctx, req.ConnectorID, start, end)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		s.metrics.BookingConflict()
		return nil, &SlotUnavailableError{ConnectorID: req.ConnectorID, Conflicts: conflicts}
	}

	energy, cost := EstimateCost(vehicle.UsableBatteryKWh, connector.MaxPowerKW, connector.PricePerKWh, end.Sub(start))

	r := &models.Reservation{
		ID:                 uuid.NewString(),
		UserID:             userID,
		VehicleID:          req.VehicleID,
		StationID:          req.StationID,
		ConnectorID:        req.ConnectorID,
		StartTime:          start,
		EndTime:            end,
		Status:             models.StatusPending,
		PaymentDeadline:    now.Add(s.policy.GracePeriod),
		TotalCostBDT:       cost,
		EstimatedEnergyKWh: energy,
		History:            []models.StatusChange{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.insertWithCredentials(ctx, r); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, r.ConnectorID)

	if err := s.scheduleJobs(ctx, r, now); err != nil {
		return nil, err
	}

	s.metrics.ReservationCreated()
	s.logger.Info("reservation created",
		zap.String("reservationId", r.ID),
		zap.String("userId", userID),
		zap.String("connectorId", r.ConnectorID),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Time("paymentDeadline", r.PaymentDeadline),
		zap.Float64("totalCostBDT", cost),
	)
	return r, nil
}

func (s *Service) validateRequest(userID string, req models.CreateReservationRequest, start, end, now time.Time) error {
	switch {
	case userID == "":
		return newValidationError("userId", "userId is required")
	case req.VehicleID == "":
		return newValidationError("vehicleId", "vehicleId is required")
	case req.StationID == "":
		return newValidationError("stationId", "stationId is required")
	case req.ConnectorID == "":
		return newValidationError("connectorId", "connectorId is required")
	}
	if err := validateWindow(start, end); err != nil {
		return err
	}
	if start.Before(now) {
		return newValidationError("start", "start must not be in the past")
	}
	if s.policy.MaxDuration > 0 && end.Sub(start) > s.policy.MaxDuration {
		return newValidationError("end", "reservation may last at most %s", s.policy.MaxDuration)
	}
	if s.policy.MaxAdvance > 0 && start.Sub(now) > s.policy.MaxAdvance {
		return newValidationError("start", "reservations may be made at most %s in advance", s.policy.MaxAdvance)
	}
	return nil
}

// resolve loads and cross-checks the station, connector and vehicle.
func (s *Service) resolve(ctx context.Context, userID string, req models.CreateReservationRequest) (*models.Station, *models.Connector, *models.Vehicle, error) {
	station, err := s.stations.GetStation(ctx, req.StationID)
	if err != nil {
		return nil, nil, nil, directoryError(err, "station", req.StationID)
	}
	connector := station.Connector(req.ConnectorID)
	if connector == nil {
		return nil, nil, nil, &NotFoundError{Entity: "connector", ID: req.ConnectorID}
	}
	vehicle, err := s.vehicles.GetVehicle(ctx, req.VehicleID)
	if err != nil {
		return nil, nil, nil, directoryError(err, "vehicle", req.VehicleID)
	}
	if vehicle.OwnerID != userID {
		return nil, nil, nil, &AccessDeniedError{Reason: "vehicle belongs to another user"}
	}
	if connector.Status != models.ConnectorAvailable {
		return nil, nil, nil, newValidationError("connectorId", "connector is %s", connector.Status)
	}
	if !vehicle.Supports(connector.Standard) {
		return nil, nil, nil, &IncompatibleConnectorError{Required: connector.Standard, Supported: vehicle.ConnectorStandards}
	}
	return station, connector, vehicle, nil
}

func directoryError(err error, entity, id string) error {
	if errors.Is(err, directoryRepo.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return &StoreUnavailableError{Op: "load " + entity, Err: err}
}

// insertWithCredentials issues credentials and performs the guarded insert,
// retrying with fresh credentials when the unique qrCode index rejects the token.
func (s *Service) insertWithCredentials(ctx context.Context, r *models.Reservation) error {
	attempts := s.issuer.maxAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		creds, err := s.issuer.Issue(ctx)
		if err != nil {
			return err
		}
		r.QRCode, r.OTP = creds.QRCode, creds.OTP

		err = s.repo.InsertIfNoOverlap(ctx, r)
		var overlap *reservationRepo.OverlapError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &overlap):
			s.metrics.BookingConflict()
			return &SlotUnavailableError{
				ConnectorID: r.ConnectorID,
				Conflicts:   Conflicts(overlap.Conflicts, r.StartTime, r.EndTime, ""),
			}
		case errors.Is(err, reservationRepo.ErrDuplicateQRCode):
			s.logger.Warn("qr token collided on insert, reissuing", zap.Int("attempt", attempt))
			continue
		default:
			return &StoreUnavailableError{Op: "insert reservation", Err: err}
		}
	}
	return &CredentialGenerationFailedError{Attempts: attempts, Err: reservationRepo.ErrDuplicateQRCode}
}

// scheduleJobs registers the expiry check and, if there is time for it, the
// payment reminder. Without an expiry job the reservation is rolled back.
func (s *Service) scheduleJobs(ctx context.Context, r *models.Reservation, now time.Time) error {
	expiryID, _, err := s.sched.ScheduleAt(ctx, scheduler.KindExpiry, r.ID, r.PaymentDeadline)
	if err != nil {
		s.logger.Error("could not schedule expiry, canceling reservation",
			zap.String("reservationId", r.ID), zap.Error(err))
		if _, cerr := s.manager.Transition(ctx, r.ID, models.StatusCanceled, models.SystemActor("booking"), "expiry scheduling failed"); cerr != nil {
			s.logger.Error("rollback of unscheduled reservation failed", zap.String("reservationId", r.ID), zap.Error(cerr))
		}
		return &StoreUnavailableError{Op: "schedule expiry", Err: err}
	}
	r.ExpiryJobID = expiryID

	if remindAt := r.PaymentDeadline.Add(-s.policy.ReminderLead); s.policy.ReminderLead > 0 && remindAt.After(now) {
		reminderID, _, err := s.sched.ScheduleAt(ctx, scheduler.KindReminder, r.ID, remindAt)
		if err != nil {
			s.logger.Warn("could not schedule payment reminder", zap.String("reservationId", r.ID), zap.Error(err))
		} else {
			r.ReminderJobID = reminderID
		}
	}

	if err := s.repo.SetJobIDs(ctx, r.ID, r.ExpiryJobID, r.ReminderJobID); err != nil {
		s.logger.Warn("could not record job ids", zap.String("reservationId", r.ID), zap.Error(err))
	}
	return nil
}

// CheckAvailability reports whether a window is free on a connector.
func (s *Service) CheckAvailability(ctx context.Context, req models.AvailabilityRequest) (models.AvailabilityResponse, error) {
	ok, conflicts, err := s.detector.IsAvailable(ctx, req.ConnectorID, req.Start.UTC(), req.End.UTC(), req.ExcludeReservationID)
	if err != nil {
		return models.AvailabilityResponse{}, err
	}
	return models.AvailabilityResponse{Available: ok, Conflicts: conflicts}, nil
}

// Get returns a reservation visible to actor: its owner, operators and the system.
func (s *Service) Get(ctx context.Context, id string, actor models.Actor) (*models.Reservation, error) {
	r, err := s.manager.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleUser && r.UserID != actor.ID {
		return nil, &AccessDeniedError{Reason: "reservation belongs to another user"}
	}
	return r, nil
}

// ListForUser returns the user's reservations, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]models.Reservation, error) {
	out, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "list reservations", Err: err}
	}
	return out, nil
}

// Credentials returns the check-in secrets to the reservation owner only.
func (s *Service) Credentials(ctx context.Context, id string, actor models.Actor) (models.CredentialsResponse, error) {
	r, err := s.manager.load(ctx, id)
	if err != nil {
		return models.CredentialsResponse{}, err
	}
	if r.UserID != actor.ID {
		return models.CredentialsResponse{}, &AccessDeniedError{Reason: "credentials are only shown to the reservation owner"}
	}
	if r.Status == models.StatusCanceled || r.Status == models.StatusExpired {
		return models.CredentialsResponse{}, newValidationError("status", "credentials are void for a %s reservation", r.Status)
	}
	img, err := QRDataURI(r.QRCode)
	if err != nil {
		return models.CredentialsResponse{}, fmt.Errorf("credentials for %s: %w", id, err)
	}
	return models.CredentialsResponse{QRCode: r.QRCode, QRImage: img, OTP: r.OTP}, nil
}
