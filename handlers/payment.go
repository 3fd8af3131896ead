package handlers

import (
	"io"
	"net/http"

	"voltslot/models"
	"voltslot/services/payment"
	"voltslot/services/reservation"
	"voltslot/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

// PaymentHandler receives payment outcomes from the payment service and Stripe.
type PaymentHandler struct {
	Manager *reservation.Manager
	Gateway payment.Gateway
	Logger  *zap.Logger
}

func NewPaymentHandler(manager *reservation.Manager, gateway payment.Gateway, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{Manager: manager, Gateway: gateway, Logger: logger.Named("payments")}
}

// CallbackHandler applies a settled charge reported by the payment service.
func (h *PaymentHandler) CallbackHandler(c *gin.Context) {
	var cb models.PaymentCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}
	res, err := h.Manager.ConfirmPayment(c.Request.Context(), cb.ReservationID, cb.Paid)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.Logger.Info("payment callback processed",
		zap.String("reservationId", cb.ReservationID), zap.Bool("paid", cb.Paid), zap.Bool("applied", res.Applied))
	c.JSON(http.StatusOK, res.Reservation.View())
}

// StripeWebhookHandler verifies a Stripe event and records the payment outcome.
// Stripe retries on non-2xx, so only transient failures return 5xx.
func (h *PaymentHandler) StripeWebhookHandler(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid webhook body", err.Error())
		return
	}
	ev, err := h.Gateway.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid webhook", err.Error())
		return
	}
	log := getLogger(c).Named("payments").With(zap.String("eventId", ev.EventID), zap.String("type", ev.Type))
	if !ev.Relevant {
		log.Debug("ignoring webhook event")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if _, err := h.Manager.ConfirmPayment(c.Request.Context(), ev.ReservationID, ev.Paid); err != nil {
		if reservation.IsTransient(err) {
			RespondError(c, err)
			return
		}
		log.Warn("webhook not applied", zap.String("reservationId", ev.ReservationID), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
