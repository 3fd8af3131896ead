package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"voltslot/middleware"
	"voltslot/models"
	"voltslot/services/payment"
	"voltslot/services/reservation"
	"voltslot/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultListLimit = 50

// ReservationHandler serves the reservation endpoints.
type ReservationHandler struct {
	Service  *reservation.Service
	Payments payment.Gateway
	Logger   *zap.Logger
}

func NewReservationHandler(svc *reservation.Service, payments payment.Gateway, logger *zap.Logger) *ReservationHandler {
	return &ReservationHandler{Service: svc, Payments: payments, Logger: logger.Named("reservations")}
}

func (h *ReservationHandler) actor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, "Unauthorized", "caller is not authenticated")
	}
	return actor, ok
}

func (h *ReservationHandler) CheckAvailabilityHandler(c *gin.Context) {
	var req models.AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}
	resp, err := h.Service.CheckAvailability(c.Request.Context(), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReservationHandler) AvailableSlotsHandler(c *gin.Context) {
	slotMinutes := 0
	if raw := c.Query("slotMinutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.JSONError(c, http.StatusBadRequest, "Invalid request", "slotMinutes must be a positive integer")
			return
		}
		if limit := h.Service.Policy().MaxSlotMinutes(); n > limit {
			utils.JSONError(c, http.StatusBadRequest, "Invalid request", fmt.Sprintf("slotMinutes must be at most %d", limit))
			return
		}
		slotMinutes = n
	}
	slots, err := h.Service.ListAvailableSlots(c.Request.Context(), c.Query("connectorId"), c.Query("date"), slotMinutes)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, slots)
}

// CreateReservationHandler books a connector for the authenticated user.
func (h *ReservationHandler) CreateReservationHandler(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req models.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}

	r, err := h.Service.CreateReservation(c.Request.Context(), actor.ID, req)
	if err != nil {
		RespondError(c, err)
		return
	}
	img, err := reservation.QRDataURI(r.QRCode)
	if err != nil {
		h.Logger.Warn("QR render failed", zap.String("reservationId", r.ID), zap.Error(err))
	}
	c.JSON(http.StatusCreated, models.ReservationResponse{Reservation: r.View(), QRImage: img})
}

func (h *ReservationHandler) ListReservationsHandler(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	list, err := h.Service.ListForUser(c.Request.Context(), actor.ID, limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	views := make([]models.Reservation, 0, len(list))
	for i := range list {
		views = append(views, list[i].View())
	}
	c.JSON(http.StatusOK, views)
}

func (h *ReservationHandler) GetReservationHandler(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	r, err := h.Service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r.View())
}

func (h *ReservationHandler) CredentialsHandler(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	creds, err := h.Service.Credentials(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, creds)
}

// UpdateStatusHandler applies a generic status change. Check-in needs a
// credential and goes through CheckInHandler instead.
func (h *ReservationHandler) UpdateStatusHandler(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var body struct {
		Status models.ReservationStatus `json:"status" binding:"required"`
		Reason string                   `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}
	if body.Status == models.StatusCheckedIn {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request", "use the check-in endpoint with a credential")
		return
	}

	res, err := h.Service.Manager().Transition(c.Request.Context(), c.Param("id"), body.Status, actor, body.Reason)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res.Reservation.View())
}

func (h *ReservationHandler) CancelHandler(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	// The body is optional.
	_ = c.ShouldBindJSON(&body)

	res, err := h.Service.Manager().Cancel(c.Request.Context(), c.Param("id"), actor, body.Reason)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res.Reservation.View())
}

func (h *ReservationHandler) CheckInHandler(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var body struct {
		QRCode string `json:"qrCode"`
		OTP    string `json:"otp"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}

	res, err := h.Service.Manager().CheckIn(c.Request.Context(), c.Param("id"), actor, body.QRCode, body.OTP)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res.Reservation.View())
}

func (h *ReservationHandler) CompleteHandler(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	res, err := h.Service.Manager().Complete(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res.Reservation.View())
}

// PaymentIntentHandler opens a Stripe payment intent for an unpaid reservation.
func (h *ReservationHandler) PaymentIntentHandler(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	r, err := h.Service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		RespondError(c, err)
		return
	}
	if r.UserID != actor.ID {
		utils.JSONError(c, http.StatusForbidden, "Access denied", "only the reservation owner can pay")
		return
	}
	if r.IsPaid || r.Status.IsTerminal() {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request", "reservation is not awaiting payment")
		return
	}

	intent, err := h.Payments.CreateIntent(c.Request.Context(), r)
	if err != nil {
		if errors.Is(err, payment.ErrNotConfigured) {
			utils.JSONError(c, http.StatusServiceUnavailable, "Payments unavailable", err.Error())
			return
		}
		h.Logger.Error("payment intent failed", zap.String("reservationId", r.ID), zap.Error(err))
		utils.JSONError(c, http.StatusBadGateway, "Failed to create payment intent", err.Error())
		return
	}
	c.JSON(http.StatusOK, intent)
}
