package gateways

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multivendhq/multivend-backend/pkg/config"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
)

func newRazorpayForTest(t *testing.T, handler http.HandlerFunc) *RazorpayAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewRazorpayAdapter(config.GatewayConfig{
		RazorpayKeyID:         "rzp_test_key",
		RazorpayKeySecret:     "rzp_test_secret",
		RazorpayWebhookSecret: "whsec",
		RazorpayBaseURL:       server.URL,
	})
}

func signRazorpay(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRazorpayInitiate(t *testing.T) {
	t.Parallel()

	adapter := newRazorpayForTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		var req razorpayOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(125000), req.Amount)
		assert.Equal(t, "MO-20260901-0001", req.Receipt)

		_ = json.NewEncoder(w).Encode(razorpayOrderResponse{
			ID:      "order_Nabc123",
			Status:  "created",
			Receipt: req.Receipt,
		})
	})

	result, err := adapter.Initiate(context.Background(), PaymentIntent{
		OrderNumber: "MO-20260901-0001",
		AmountCents: 125000,
		Currency:    "INR",
		Method:      enums.PaymentMethodUPI,
	})
	require.NoError(t, err)
	assert.Equal(t, "order_Nabc123", result.TransactionID)
	assert.Equal(t, "MO-20260901-0001", result.ReferenceID)
	assert.Equal(t, enums.PaymentStatusPending, result.Status)
}

func TestRazorpayInitiateGatewayError(t *testing.T) {
	t.Parallel()

	adapter := newRazorpayForTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := adapter.Initiate(context.Background(), PaymentIntent{AmountCents: 100, Currency: "INR"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
}

func TestRazorpayVerify(t *testing.T) {
	t.Parallel()

	adapter := newRazorpayForTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/order_Nabc123/payments", r.URL.Path)
		_, _ = w.Write([]byte(`{"items":[
			{"id":"pay_1","amount":125000,"status":"failed"},
			{"id":"pay_2","amount":125000,"status":"captured"}
		]}`))
	})

	result, err := adapter.Verify(context.Background(), "order_Nabc123", "")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, result.Status)
	assert.Equal(t, int64(125000), result.AmountCents)
}

func TestRazorpayWebhookSignature(t *testing.T) {
	t.Parallel()

	adapter := NewRazorpayAdapter(config.GatewayConfig{RazorpayWebhookSecret: "whsec"})
	body := []byte(`{"event":"payment.captured"}`)

	valid := WebhookRequest{Body: body, Headers: http.Header{}}
	valid.Headers.Set("X-Razorpay-Signature", signRazorpay("whsec", body))
	assert.True(t, adapter.ValidateSignature(valid))

	tampered := WebhookRequest{Body: []byte(`{"event":"payment.failed"}`), Headers: valid.Headers}
	assert.False(t, adapter.ValidateSignature(tampered))

	missing := WebhookRequest{Body: body, Headers: http.Header{}}
	assert.False(t, adapter.ValidateSignature(missing))
}

func TestRazorpayHandleWebhook(t *testing.T) {
	t.Parallel()

	adapter := NewRazorpayAdapter(config.GatewayConfig{})

	captured := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{
		"id":"pay_77","order_id":"order_Nabc123","amount":125000,"status":"captured"}}}}`)
	headers := http.Header{}
	headers.Set("X-Razorpay-Event-Id", "evt_001")

	event := adapter.HandleWebhook(WebhookRequest{Body: captured, Headers: headers})
	assert.Equal(t, "evt_001", event.EventID)
	assert.Equal(t, enums.WebhookEventSuccess, event.Status)
	assert.Equal(t, "order_Nabc123", event.TransactionID)
	assert.Equal(t, "pay_77", event.ReferenceID)
	assert.Equal(t, int64(125000), event.AmountCents)

	failed := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{
		"id":"pay_78","order_id":"order_Nabc123","amount":125000,"status":"failed",
		"error_description":"card declined"}}}}`)
	event = adapter.HandleWebhook(WebhookRequest{Body: failed, Headers: http.Header{}})
	assert.Equal(t, enums.WebhookEventFailed, event.Status)
	assert.Equal(t, "card declined", event.ErrorMessage)

	// Unknown event types and malformed bodies are acknowledged, not errored.
	event = adapter.HandleWebhook(WebhookRequest{Body: []byte(`{"event":"refund.created"}`), Headers: http.Header{}})
	assert.Equal(t, enums.WebhookEventIgnored, event.Status)

	event = adapter.HandleWebhook(WebhookRequest{Body: []byte(`{not json`), Headers: http.Header{}})
	assert.Equal(t, enums.WebhookEventIgnored, event.Status)
}

func TestRazorpaySupportsMethod(t *testing.T) {
	t.Parallel()

	adapter := NewRazorpayAdapter(config.GatewayConfig{})
	assert.True(t, adapter.SupportsMethod(enums.PaymentMethodUPI))
	assert.True(t, adapter.SupportsMethod(enums.PaymentMethodCard))
	assert.False(t, adapter.SupportsMethod(enums.PaymentMethodCOD))
}
