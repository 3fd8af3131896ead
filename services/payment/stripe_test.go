package payment

import (
	"context"
	"testing"
	"time"

	"voltslot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const testSecret = "whsec_test_secret"

func signed(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return sp.Header, sp.Payload
}

func TestParseWebhookSucceeded(t *testing.T) {
	g := NewStripeGateway("", testSecret, zap.NewNop())
	header, body := signed(t, `{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_1", "object": "payment_intent", "metadata": {"reservationId": "res-42"}}}
	}`)

	ev, err := g.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.EventID)
	assert.Equal(t, "res-42", ev.ReservationID)
	assert.True(t, ev.Paid)
	assert.True(t, ev.Relevant)
}

func TestParseWebhookFailedPayment(t *testing.T) {
	g := NewStripeGateway("", testSecret, zap.NewNop())
	header, body := signed(t, `{
		"id": "evt_2",
		"object": "event",
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_2", "object": "payment_intent", "metadata": {"reservationId": "res-42"}}}
	}`)

	ev, err := g.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.False(t, ev.Paid)
	assert.True(t, ev.Relevant)
}

func TestParseWebhookIgnoresOtherEvents(t *testing.T) {
	g := NewStripeGateway("", testSecret, zap.NewNop())
	header, body := signed(t, `{"id": "evt_3", "object": "event", "type": "customer.created", "data": {"object": {}}}`)

	ev, err := g.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.False(t, ev.Relevant)
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	g := NewStripeGateway("", testSecret, zap.NewNop())
	_, body := signed(t, `{"id": "evt_4", "object": "event", "type": "payment_intent.succeeded", "data": {"object": {}}}`)

	_, err := g.ParseWebhook(body, "t=1,v1=deadbeef")
	assert.Error(t, err)
}

func TestUnconfiguredGateway(t *testing.T) {
	g := NewStripeGateway("", "", zap.NewNop())

	_, err := g.CreateIntent(context.Background(), &models.Reservation{ID: "r1", TotalCostBDT: 10})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = g.ParseWebhook([]byte("{}"), "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(125000), toMinorUnits(1250))
	assert.Equal(t, int64(6845), toMinorUnits(68.45))
}
