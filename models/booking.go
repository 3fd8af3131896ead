package models

import "time"

// ReservationStatus is the lifecycle state of a connector reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "PENDING"
	StatusConfirmed ReservationStatus = "CONFIRMED"
	StatusCheckedIn ReservationStatus = "CHECKED_IN"
	StatusCompleted ReservationStatus = "COMPLETED"
	StatusCanceled  ReservationStatus = "CANCELED"
	StatusExpired   ReservationStatus = "EXPIRED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []ReservationStatus{
	StatusPending,
	StatusConfirmed,
	StatusCheckedIn,
	StatusCompleted,
	StatusCanceled,
	StatusExpired,
}

// BlockingStatuses are the statuses that still occupy a connector.
var BlockingStatuses = []ReservationStatus{StatusPending, StatusConfirmed, StatusCheckedIn}

// IsBlocking reports whether a reservation in this status occupies its connector.
func (s ReservationStatus) IsBlocking() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusCheckedIn
}

// IsTerminal reports whether no further transitions are possible.
func (s ReservationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusExpired
}

// Valid reports whether s is a known status.
func (s ReservationStatus) Valid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// StatusChange is one audit entry in a reservation's history.
type StatusChange struct {
	From  ReservationStatus `bson:"from" json:"from"`
	To    ReservationStatus `bson:"to" json:"to"`
	At    time.Time         `bson:"at" json:"at"`
	Actor string            `bson:"actor" json:"actor"`
}

// Reservation is a time-boxed claim on a single charging connector.
type Reservation struct {
	ID          string `bson:"id" json:"id"`
	UserID      string `bson:"userId" json:"userId"`
	VehicleID   string `bson:"vehicleId" json:"vehicleId"`
	StationID   string `bson:"stationId" json:"stationId"`
	ConnectorID string `bson:"connectorId" json:"connectorId"`

	StartTime time.Time         `bson:"startTime" json:"startTime"`
	EndTime   time.Time         `bson:"endTime" json:"endTime"`
	Status    ReservationStatus `bson:"status" json:"status"`

	QRCode string `bson:"qrCode" json:"qrCode,omitempty"`
	OTP    string `bson:"otp" json:"-"`

	PaymentDeadline    time.Time `bson:"paymentDeadline" json:"paymentDeadline"`
	IsPaid             bool      `bson:"isPaid" json:"isPaid"`
	TotalCostBDT       float64   `bson:"totalCostBDT" json:"totalCostBDT"`
	EstimatedEnergyKWh float64   `bson:"estimatedEnergyKWh" json:"estimatedEnergyKWh"`

	ExpiryJobID   string `bson:"expiryJobId,omitempty" json:"-"`
	ReminderJobID string `bson:"reminderJobId,omitempty" json:"-"`

	CheckedInAt  *time.Time `bson:"checkedInAt,omitempty" json:"checkedInAt,omitempty"`
	CompletedAt  *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CanceledAt   *time.Time `bson:"canceledAt,omitempty" json:"canceledAt,omitempty"`
	CancelReason string     `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`

	History   []StatusChange `bson:"history" json:"history,omitempty"`
	CreatedAt time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// Interval returns the reservation's half-open window.
func (r *Reservation) Interval() Interval {
	return Interval{Start: r.StartTime, End: r.EndTime}
}

// View returns the externally visible copy of the reservation. The OTP is never
// serialized and the QR token is withheld once the reservation is void.
func (r *Reservation) View() Reservation {
	v := *r
	v.OTP = ""
	if r.Status == StatusCanceled || r.Status == StatusExpired {
		v.QRCode = ""
	}
	v.History = append([]StatusChange(nil), r.History...)
	return v
}

// Clone returns a deep copy safe to hand out from in-memory stores.
func (r *Reservation) Clone() *Reservation {
	c := *r
	c.History = append([]StatusChange(nil), r.History...)
	c.CheckedInAt = cloneTime(r.CheckedInAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.CanceledAt = cloneTime(r.CanceledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// CreateReservationRequest is the booking payload accepted by the API.
type CreateReservationRequest struct {
	VehicleID   string    `json:"vehicleId" binding:"required"`
	StationID   string    `json:"stationId" binding:"required"`
	ConnectorID string    `json:"connectorId" binding:"required"`
	Start       time.Time `json:"start" binding:"required"`
	End         time.Time `json:"end" binding:"required"`
}

// ReservationResponse wraps a created reservation with its renderable QR image.
type ReservationResponse struct {
	Reservation Reservation `json:"reservation"`
	QRImage     string      `json:"qrImage"`
}

// CredentialsResponse is returned only to the reservation owner.
type CredentialsResponse struct {
	QRCode  string `json:"qrCode"`
	QRImage string `json:"qrImage"`
	OTP     string `json:"otp"`
}
