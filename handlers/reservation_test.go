package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	directoryRepo "voltslot/database/repository/directory"
	reservationRepo "voltslot/database/repository/reservation"
	"voltslot/handlers"
	"voltslot/models"
	"voltslot/routes"
	"voltslot/services/payment"
	"voltslot/services/reservation"
	"voltslot/services/scheduler"
	"voltslot/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	jwtSecret      = "test-jwt-secret"
	callbackSecret = "test-callback-secret"
)

// 10:00 in Asia/Dhaka.
var baseNow = time.Date(2025, 3, 10, 4, 0, 0, 0, time.UTC)

type fakeGateway struct {
	event payment.WebhookEvent
	err   error
}

func (g *fakeGateway) CreateIntent(_ context.Context, r *models.Reservation) (models.PaymentIntent, error) {
	if g.err != nil {
		return models.PaymentIntent{}, g.err
	}
	return models.PaymentIntent{ReservationID: r.ID, IntentID: "pi_test", ClientSecret: "pi_test_secret", AmountBDT: r.TotalCostBDT, Currency: "bdt"}, nil
}

func (g *fakeGateway) ParseWebhook([]byte, string) (payment.WebhookEvent, error) {
	return g.event, g.err
}

type testServer struct {
	router   *gin.Engine
	svc      *reservation.Service
	gateway  *fakeGateway
	verifier *utils.TokenVerifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := directoryRepo.NewMemoryDirectory()
	dir.PutStation(models.Station{
		ID: "st-1", Name: "Gulshan Hub", OperatorID: "op-1",
		Connectors: []models.Connector{
			{ID: "c-1", Standard: "CCS2", MaxPowerKW: 50, PricePerKWh: 25, Status: models.ConnectorAvailable},
		},
	})
	dir.PutVehicle(models.Vehicle{ID: "v-1", OwnerID: "u-1", Model: "Ioniq 5", ConnectorStandards: []string{"CCS2"}, UsableBatteryKWh: 60})
	dir.PutUser(models.User{ID: "u-1", Email: "rafi@example.com", Name: "Rafi"})
	dir.PutUser(models.User{ID: "u-2", Email: "nila@example.com", Name: "Nila"})

	loc, _ := time.LoadLocation("Asia/Dhaka")
	sched := scheduler.NewMemoryScheduler(scheduler.Options{})
	svc := reservation.NewService(reservation.Deps{
		Repo:      reservationRepo.NewMemoryReservationRepo(),
		Stations:  dir,
		Vehicles:  dir,
		Users:     dir,
		Scheduler: sched,
		Logger:    zap.NewNop(),
	}, reservation.Policy{
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
	})
	svc.SetClock(func() time.Time { return baseNow })

	gateway := &fakeGateway{}
	verifier := utils.NewTokenVerifier(jwtSecret)
	bundle := handlers.NewHandlerBundle(
		handlers.NewReservationHandler(svc, gateway, zap.NewNop()),
		handlers.NewPaymentHandler(svc.Manager(), gateway, zap.NewNop()),
		handlers.NewAdminHandler(sched),
		verifier,
		callbackSecret,
		nil,
	)
	router := gin.New()
	router.Use(handlers.RequestLogger(zap.NewNop()))
	routes.RegisterRoutes(router, bundle, prometheus.NewRegistry())

	return &testServer{router: router, svc: svc, gateway: gateway, verifier: verifier}
}

func (s *testServer) token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := s.verifier.GenerateToken(sub, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) create(t *testing.T, userToken string, start time.Time) models.Reservation {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/reservations", userToken, models.CreateReservationRequest{
		VehicleID: "v-1", StationID: "st-1", ConnectorID: "c-1", Start: start, End: start.Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp models.ReservationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Reservation
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var e utils.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestCreateReservationResponse(t *testing.T) {
	s := newTestServer(t)
	user := s.token(t, "u-1", models.RoleUser)

	w := s.do(t, http.MethodPost, "/api/reservations", user, models.CreateReservationRequest{
		VehicleID: "v-1", StationID: "st-1", ConnectorID: "c-1", Start: baseNow.Add(2 * time.Hour), End: baseNow.Add(3 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	var res map[string]any
	require.NoError(t, json.Unmarshal(raw["reservation"], &res))
	assert.Equal(t, "PENDING", res["status"])
	assert.NotContains(t, res, "otp")
	assert.Equal(t, 50.0, res["estimatedEnergyKWh"])
	assert.Equal(t, 1250.0, res["totalCostBDT"])
	assert.True(t, strings.HasPrefix(w.Body.String(), `{"reservation"`))
	assert.Contains(t, w.Body.String(), `"qrImage":"data:image/png;base64,`)
}

func TestCreateReservationConflictReturnsWindows(t *testing.T) {
	s := newTestServer(t)
	user := s.token(t, "u-1", models.RoleUser)
	start := baseNow.Add(2 * time.Hour)
	s.create(t, user, start)

	w := s.do(t, http.MethodPost, "/api/reservations", user, models.CreateReservationRequest{
		VehicleID: "v-1", StationID: "st-1", ConnectorID: "c-1", Start: start.Add(30 * time.Minute), End: start.Add(90 * time.Minute),
	})
	require.Equal(t, http.StatusConflict, w.Code)

	var body struct {
		Data struct {
			Conflicts []models.Interval `json:"conflicts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data.Conflicts, 1)
	assert.True(t, body.Data.Conflicts[0].Start.Equal(start))
}

func TestCreateReservationStatusMapping(t *testing.T) {
	s := newTestServer(t)
	user := s.token(t, "u-1", models.RoleUser)
	start := baseNow.Add(2 * time.Hour)

	cases := []struct {
		name string
		req  models.CreateReservationRequest
		code int
	}{
		{"end before start", models.CreateReservationRequest{VehicleID: "v-1", StationID: "st-1", ConnectorID: "c-1", Start: start, End: start.Add(-time.Hour)}, http.StatusBadRequest},
		{"unknown station", models.CreateReservationRequest{VehicleID: "v-1", StationID: "st-9", ConnectorID: "c-1", Start: start, End: start.Add(time.Hour)}, http.StatusNotFound},
		{"missing field", models.CreateReservationRequest{StationID: "st-1", ConnectorID: "c-1", Start: start, End: start.Add(time.Hour)}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/reservations", user, tc.req)
			assert.Equal(t, tc.code, w.Code, w.Body.String())
		})
	}

	other := s.token(t, "u-2", models.RoleUser)
	w := s.do(t, http.MethodPost, "/api/reservations", other, models.CreateReservationRequest{
		VehicleID: "v-1", StationID: "st-1", ConnectorID: "c-1", Start: start, End: start.Add(time.Hour),
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/reservations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/reservations", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetReservationVisibility(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, "u-1", models.RoleUser)
	r := s.create(t, owner, baseNow.Add(2*time.Hour))

	w := s.do(t, http.MethodGet, "/api/reservations/"+r.ID, owner, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/reservations/"+r.ID, s.token(t, "u-2", models.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/reservations/"+r.ID, s.token(t, "op-1", models.RoleOperator), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/reservations/missing", owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListReservationsHidesOTP(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, "u-1", models.RoleUser)
	s.create(t, owner, baseNow.Add(2*time.Hour))
	s.create(t, owner, baseNow.Add(4*time.Hour))

	w := s.do(t, http.MethodGet, "/api/reservations", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)
	for _, r := range list {
		assert.NotContains(t, r, "otp")
	}

	w = s.do(t, http.MethodGet, "/api/reservations", s.token(t, "u-2", models.RoleUser), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestPaymentCallbackThenCheckIn(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, "u-1", models.RoleUser)
	operator := s.token(t, "op-1", models.RoleOperator)
	r := s.create(t, owner, baseNow.Add(2*time.Hour))

	w := s.do(t, http.MethodPost, "/api/payments/callback", "", models.PaymentCallback{ReservationID: r.ID, Paid: true})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/payments/callback", "", models.PaymentCallback{ReservationID: r.ID, Paid: true},
		"X-Payment-Secret", callbackSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var paid models.Reservation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &paid))
	assert.Equal(t, models.StatusConfirmed, paid.Status)
	assert.True(t, paid.IsPaid)

	w = s.do(t, http.MethodGet, "/api/reservations/"+r.ID+"/credentials", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var creds models.CredentialsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &creds))
	assert.Len(t, creds.OTP, 6)

	w = s.do(t, http.MethodPost, "/api/reservations/"+r.ID+"/check-in", owner, gin.H{"otp": creds.OTP})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/reservations/"+r.ID+"/check-in", operator, gin.H{"otp": "000000"})
	if creds.OTP != "000000" {
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/reservations/"+r.ID+"/check-in", operator, gin.H{"qrCode": creds.QRCode})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/reservations/"+r.ID+"/complete", operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var done models.Reservation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &done))
	assert.Equal(t, models.StatusCompleted, done.Status)
}

func TestCancelRespectsCutoff(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, "u-1", models.RoleUser)
	soon := s.create(t, owner, baseNow.Add(30*time.Minute))
	later := s.create(t, owner, baseNow.Add(3*time.Hour))

	w := s.do(t, http.MethodPost, "/api/reservations/"+soon.ID+"/cancel", owner, gin.H{"reason": "changed plans"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Cancellation window closed", decodeError(t, w).Message)

	w = s.do(t, http.MethodPost, "/api/reservations/"+later.ID+"/cancel", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var canceled models.Reservation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &canceled))
	assert.Equal(t, models.StatusCanceled, canceled.Status)
	assert.Empty(t, canceled.QRCode)

	w = s.do(t, http.MethodGet, "/api/reservations/"+later.ID+"/credentials", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateStatus(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, "u-1", models.RoleUser)
	operator := s.token(t, "op-1", models.RoleOperator)
	r := s.create(t, owner, baseNow.Add(3*time.Hour))

	w := s.do(t, http.MethodPatch, "/api/reservations/"+r.ID, operator, gin.H{"status": "CHECKED_IN"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/api/reservations/"+r.ID, operator, gin.H{"status": "COMPLETED"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid status transition", decodeError(t, w).Message)

	stranger := s.token(t, "u-2", models.RoleUser)
	w = s.do(t, http.MethodPatch, "/api/reservations/"+r.ID, stranger, gin.H{"status": "COMPLETED"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, w.Body.String(), "PENDING")

	w = s.do(t, http.MethodPatch, "/api/reservations/"+r.ID, operator, gin.H{"status": "BOGUS"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/api/reservations/"+r.ID, operator, gin.H{"status": "CONFIRMED"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAvailabilityEndpoints(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, "u-1", models.RoleUser)
	start := baseNow.Add(2 * time.Hour)
	s.create(t, owner, start)

	w := s.do(t, http.MethodPost, "/api/reservations/check-availability", owner, models.AvailabilityRequest{
		ConnectorID: "c-1", Start: start.Add(time.Hour), End: start.Add(2 * time.Hour),
	})
	require.Equal(t, http.StatusOK, w.Code)
	var avail models.AvailabilityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &avail))
	assert.True(t, avail.Available)
	assert.Empty(t, avail.Conflicts)

	w = s.do(t, http.MethodGet, "/api/reservations/available-slots?connectorId=c-1&date=2025-03-10", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var slots []models.AvailableSlot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &slots))
	assert.Len(t, slots, 34)

	w = s.do(t, http.MethodGet, "/api/reservations/available-slots?connectorId=c-1&date=2025-03-10&slotMinutes=abc", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/reservations/available-slots?connectorId=c-1&date=2025-03-10&slotMinutes=153722868", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Details, "at most 1020")

	w = s.do(t, http.MethodGet, "/api/reservations/available-slots?connectorId=c-1&date=10-03-2025", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentIntent(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, "u-1", models.RoleUser)
	r := s.create(t, owner, baseNow.Add(2*time.Hour))

	w := s.do(t, http.MethodPost, "/api/reservations/"+r.ID+"/payment-intent", s.token(t, "op-1", models.RoleOperator), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/reservations/"+r.ID+"/payment-intent", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var intent models.PaymentIntent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))
	assert.Equal(t, r.ID, intent.ReservationID)
	assert.Equal(t, 1250.0, intent.AmountBDT)

	s.gateway.err = payment.ErrNotConfigured
	w = s.do(t, http.MethodPost, "/api/reservations/"+r.ID+"/payment-intent", owner, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStripeWebhookConfirmsReservation(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, "u-1", models.RoleUser)
	r := s.create(t, owner, baseNow.Add(2*time.Hour))

	s.gateway.event = payment.WebhookEvent{EventID: "evt_1", Type: "payment_intent.succeeded", ReservationID: r.ID, Paid: true, Relevant: true}
	w := s.do(t, http.MethodPost, "/api/payments/stripe/webhook", "", gin.H{})
	require.Equal(t, http.StatusOK, w.Code)

	got, err := s.svc.Get(context.Background(), r.ID, models.SystemActor("test"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.True(t, got.IsPaid)

	s.gateway.event = payment.WebhookEvent{EventID: "evt_2", Type: "payment_intent.succeeded", ReservationID: "unknown", Paid: true, Relevant: true}
	w = s.do(t, http.MethodPost, "/api/payments/stripe/webhook", "", gin.H{})
	assert.Equal(t, http.StatusOK, w.Code)

	s.gateway.err = payment.ErrNotConfigured
	w = s.do(t, http.MethodPost, "/api/payments/stripe/webhook", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeadLettersRequiresOperator(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/admin/jobs/dead-letter", s.token(t, "u-1", models.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/jobs/dead-letter", s.token(t, "op-1", models.RoleOperator), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"jobs": []}`, w.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
