package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent_CheckoutSessionCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_100",
		"type": "checkout.session.completed",
		"created": 1750000000,
		"data": {
			"object": {
				"id": "cs_test_1",
				"object": "checkout.session",
				"payment_intent": "pi_1",
				"amount_total": 5099,
				"customer_details": {
					"name": "Mario Rossi",
					"email": "mario@example.com",
					"phone": null,
					"address": {"city": "Torino"}
				}
			}
		}
	}`)

	e, err := ParseEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, "evt_100", e.ID)
	assert.Equal(t, EventCheckoutSessionCompleted, e.Type)
	require.NotNil(t, e.Session)
	assert.Equal(t, "cs_test_1", e.Session.ID)
	assert.Equal(t, "pi_1", e.Session.PaymentIntentID)
	assert.Equal(t, "Mario Rossi", e.Session.CustomerName)
	assert.Equal(t, "mario@example.com", e.Session.CustomerEmail)
	assert.Empty(t, e.Session.CustomerPhone)
}

func TestParseEvent_PaymentIntentFailed(t *testing.T) {
	payload := []byte(`{
		"id": "evt_101",
		"type": "payment_intent.payment_failed",
		"data": {
			"object": {
				"id": "pi_2",
				"last_payment_error": {"code": "card_declined", "message": "Your card was declined."}
			}
		}
	}`)

	e, err := ParseEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, EventPaymentIntentFailed, e.Type)
	require.NotNil(t, e.PaymentIntent)
	assert.Equal(t, "pi_2", e.PaymentIntent.ID)
	assert.Equal(t, "Your card was declined.", e.PaymentIntent.FailureMessage)
}

func TestParseEvent_DisputeCreated(t *testing.T) {
	payload := []byte(`{
		"id": "evt_102",
		"type": "charge.dispute.created",
		"data": {
			"object": {"id": "dp_1", "payment_intent": "pi_3", "reason": "fraudulent"}
		}
	}`)

	e, err := ParseEvent(payload)
	require.NoError(t, err)

	require.NotNil(t, e.Dispute)
	assert.Equal(t, "dp_1", e.Dispute.ID)
	assert.Equal(t, "pi_3", e.Dispute.PaymentIntentID)
	assert.Equal(t, "fraudulent", e.Dispute.Reason)
}

func TestParseEvent_UnknownType(t *testing.T) {
	payload := []byte(`{
		"id": "evt_103",
		"type": "invoice.payment_succeeded",
		"data": {"object": {"id": "in_1"}}
	}`)

	e, err := ParseEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, "invoice.payment_succeeded", e.Type)
	assert.Nil(t, e.Session)
	assert.Nil(t, e.PaymentIntent)
	assert.Nil(t, e.Dispute)
}

func TestParseEvent_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "not json"},
		{"missing id", `{"type":"payment_intent.succeeded"}`},
		{"missing type", `{"id":"evt_1"}`},
		{"truncated", `{"id":"evt_1","type":`},
		{"session without object", `{"id":"evt_1","type":"checkout.session.completed"}`},
		{"session with empty data", `{"id":"evt_1","type":"checkout.session.completed","data":{}}`},
		{"intent without object", `{"id":"evt_1","type":"payment_intent.succeeded","data":{}}`},
		{"failure without object", `{"id":"evt_1","type":"payment_intent.payment_failed"}`},
		{"dispute without object", `{"id":"evt_1","type":"charge.dispute.created","data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.payload))
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}
