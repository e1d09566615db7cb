package stripe_test

import (
	"errors"
	"testing"
	"time"

	"github.com/mekongcart/checkout-service/internal/payment/stripe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const endpointSecret = "whsec_test_secret"

var sessionPayload = []byte(`{
	"id": "evt_1",
	"type": "checkout.session.completed",
	"data": {
		"object": {
			"id": "cs_test_123",
			"amount_total": 12500,
			"currency": "usd",
			"payment_status": "paid",
			"metadata": {"userId": "123e4567-e89b-12d3-a456-426614174000"},
			"customer_details": {
				"name": "Jane Doe",
				"email": "jane@example.com",
				"phone": "+15550001111",
				"address": {"city": "Hanoi", "country": "VN", "line1": "1 Pho Hue"}
			}
		}
	}
}`)

func TestWebhookVerifier_ConstructEvent(t *testing.T) {
	verifier := stripe.NewWebhookVerifier(endpointSecret)
	header := stripe.SignPayload(endpointSecret, time.Now(), sessionPayload)

	event, err := verifier.ConstructEvent(sessionPayload, header)
	require.NoError(t, err)

	assert.Equal(t, stripe.EventCheckoutSessionCompleted, event.Type)
	sess := event.Session()
	assert.Equal(t, "cs_test_123", sess.ID)
	assert.Equal(t, int64(12500), sess.AmountTotal)
	assert.Equal(t, "paid", sess.PaymentStatus)
	assert.Equal(t, "123e4567-e89b-12d3-a456-426614174000", sess.Metadata["userId"])
	assert.Equal(t, "Jane Doe", sess.CustomerDetails.Name)
	assert.Equal(t, "Hanoi", sess.CustomerDetails.Address.City)
}

func TestWebhookVerifier_ConstructEvent_TamperedPayload(t *testing.T) {
	verifier := stripe.NewWebhookVerifier(endpointSecret)
	header := stripe.SignPayload(endpointSecret, time.Now(), sessionPayload)

	tampered := make([]byte, len(sessionPayload))
	copy(tampered, sessionPayload)
	tampered[len(tampered)/2] ^= 0x01

	_, err := verifier.ConstructEvent(tampered, header)
	assert.True(t, errors.Is(err, stripe.ErrInvalidSignature))
}

func TestWebhookVerifier_ConstructEvent_WrongSecret(t *testing.T) {
	verifier := stripe.NewWebhookVerifier(endpointSecret)
	header := stripe.SignPayload("whsec_other", time.Now(), sessionPayload)

	_, err := verifier.ConstructEvent(sessionPayload, header)
	assert.True(t, errors.Is(err, stripe.ErrInvalidSignature))
}

func TestWebhookVerifier_ConstructEvent_HeaderErrors(t *testing.T) {
	verifier := stripe.NewWebhookVerifier(endpointSecret)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing_header", header: ""},
		{name: "no_signature", header: "t=1700000000"},
		{name: "no_timestamp", header: "v1=abcdef"},
		{name: "malformed_pair", header: "t=1700000000,v1"},
		{name: "bad_timestamp", header: "t=notanumber,v1=abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.ConstructEvent(sessionPayload, tt.header)
			assert.True(t, errors.Is(err, stripe.ErrInvalidSignature))
		})
	}
}

func TestWebhookVerifier_ConstructEvent_StaleTimestamp(t *testing.T) {
	verifier := stripe.NewWebhookVerifier(endpointSecret)
	header := stripe.SignPayload(endpointSecret, time.Now().Add(-stripe.DefaultTolerance-time.Minute), sessionPayload)

	_, err := verifier.ConstructEvent(sessionPayload, header)
	assert.True(t, errors.Is(err, stripe.ErrInvalidSignature))
}
