package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"voltslot/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const (
	currencyBDT          = "bdt"
	metadataReservation  = "reservationId"
	eventIntentSucceeded = "payment_intent.succeeded"
	eventIntentFailed    = "payment_intent.payment_failed"
)

// ErrNotConfigured is returned when no Stripe key was provided.
var ErrNotConfigured = errors.New("payment gateway not configured")

// WebhookEvent is a verified payment outcome. Relevant is false for event
// types that do not affect a reservation.
type WebhookEvent struct {
	EventID       string
	Type          string
	ReservationID string
	Paid          bool
	Relevant      bool
}

// Gateway creates payment intents and verifies processor callbacks.
type Gateway interface {
	CreateIntent(ctx context.Context, r *models.Reservation) (models.PaymentIntent, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}

// StripeGateway talks to Stripe with a per-instance client.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	logger        *zap.Logger
}

func NewStripeGateway(secretKey, webhookSecret string, logger *zap.Logger) *StripeGateway {
	var api *client.API
	if secretKey != "" {
		api = &client.API{}
		api.Init(secretKey, nil)
	}
	return &StripeGateway{api: api, webhookSecret: webhookSecret, logger: logger.Named("stripe")}
}

// CreateIntent opens (or, on retry, returns the same) payment intent for the
// reservation's total. The idempotency key is derived from the reservation id.
func (g *StripeGateway) CreateIntent(ctx context.Context, r *models.Reservation) (models.PaymentIntent, error) {
	if g.api == nil {
		return models.PaymentIntent{}, ErrNotConfigured
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(r.TotalCostBDT)),
		Currency: stripe.String(currencyBDT),
	}
	params.Context = ctx
	params.AddMetadata(metadataReservation, r.ID)
	params.SetIdempotencyKey("reservation-" + r.ID)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return models.PaymentIntent{}, fmt.Errorf("create payment intent: %w", err)
	}
	g.logger.Info("payment intent created", zap.String("reservationId", r.ID), zap.String("intentId", pi.ID))
	return models.PaymentIntent{
		ReservationID: r.ID,
		IntentID:      pi.ID,
		ClientSecret:  pi.ClientSecret,
		AmountBDT:     r.TotalCostBDT,
		Currency:      currencyBDT,
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the outcome.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	if g.webhookSecret == "" {
		return WebhookEvent{}, ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	out := WebhookEvent{EventID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case eventIntentSucceeded:
		out.Paid = true
	case eventIntentFailed:
	default:
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode payment intent: %w", err)
	}
	out.ReservationID = pi.Metadata[metadataReservation]
	out.Relevant = out.ReservationID != ""
	return out, nil
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
