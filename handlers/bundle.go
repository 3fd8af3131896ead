package handlers

import (
	"voltslot/utils"

	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	Verifier              *utils.TokenVerifier
	PaymentCallbackSecret string

	// Reservation endpoints
	CheckAvailability gin.HandlerFunc
	AvailableSlots    gin.HandlerFunc
	CreateReservation gin.HandlerFunc
	ListReservations  gin.HandlerFunc
	GetReservation    gin.HandlerFunc
	Credentials       gin.HandlerFunc
	UpdateStatus      gin.HandlerFunc
	CancelReservation gin.HandlerFunc
	CheckIn           gin.HandlerFunc
	Complete          gin.HandlerFunc
	PaymentIntent     gin.HandlerFunc

	// Payment endpoints
	PaymentCallback gin.HandlerFunc
	StripeWebhook   gin.HandlerFunc

	// Admin endpoints
	DeadLetters gin.HandlerFunc

	// Health reports the last dependency check.
	Health *utils.HealthMonitor
}

// NewHandlerBundle wires handler methods into the bundle.
func NewHandlerBundle(rh *ReservationHandler, ph *PaymentHandler, ah *AdminHandler, verifier *utils.TokenVerifier, callbackSecret string, health *utils.HealthMonitor) *HandlerBundle {
	return &HandlerBundle{
		Verifier:              verifier,
		PaymentCallbackSecret: callbackSecret,

		CheckAvailability: rh.CheckAvailabilityHandler,
		AvailableSlots:    rh.AvailableSlotsHandler,
		CreateReservation: rh.CreateReservationHandler,
		ListReservations:  rh.ListReservationsHandler,
		GetReservation:    rh.GetReservationHandler,
		Credentials:       rh.CredentialsHandler,
		UpdateStatus:      rh.UpdateStatusHandler,
		CancelReservation: rh.CancelHandler,
		CheckIn:           rh.CheckInHandler,
		Complete:          rh.CompleteHandler,
		PaymentIntent:     rh.PaymentIntentHandler,

		PaymentCallback: ph.CallbackHandler,
		StripeWebhook:   ph.StripeWebhookHandler,

		DeadLetters: ah.DeadLettersHandler,

		Health: health,
	}
}
