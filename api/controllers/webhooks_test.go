package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	webhooksvc "github.com/multivendhq/multivend-backend/internal/webhooks"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
)

type stubWebhookService struct {
	result *webhooksvc.Result
	err    error

	gatewayID string
	body      []byte
}

func (s *stubWebhookService) HandleWebhook(ctx context.Context, gatewayID string, body []byte, headers http.Header) (*webhooksvc.Result, error) {
	s.gatewayID = gatewayID
	s.body = body
	return s.result, s.err
}

func TestGatewayWebhookAccepted(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{result: &webhooksvc.Result{Accepted: true, Outcome: webhooksvc.OutcomeApplied, EventID: "evt_1"}}
	handler := GatewayWebhook(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", strings.NewReader(`{"event":"payment.captured"}`))
	req = req.WithContext(withRouteParam(req.Context(), "gateway", "razorpay"))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.gatewayID != "razorpay" {
		t.Fatalf("gateway id not forwarded: %q", svc.gatewayID)
	}
	if string(svc.body) != `{"event":"payment.captured"}` {
		t.Fatalf("raw body not forwarded: %s", svc.body)
	}

	var envelope struct {
		Data map[string]string `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data["outcome"] != string(webhooksvc.OutcomeApplied) {
		t.Fatalf("unexpected outcome %q", envelope.Data["outcome"])
	}
	if envelope.Data["event_id"] != "evt_1" {
		t.Fatalf("unexpected event id %q", envelope.Data["event_id"])
	}
}

func TestGatewayWebhookReplayStillAnswers200(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{result: &webhooksvc.Result{Accepted: true, Outcome: webhooksvc.OutcomeDeduplicated, EventID: "evt_1"}}
	handler := GatewayWebhook(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", strings.NewReader(`{}`))
	req = req.WithContext(withRouteParam(req.Context(), "gateway", "razorpay"))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for replay got %d", resp.Code)
	}
}

func TestGatewayWebhookBadSignature(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{err: pkgerrors.New(pkgerrors.CodeSignatureInvalid, "signature mismatch")}
	handler := GatewayWebhook(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", strings.NewReader(`{}`))
	req = req.WithContext(withRouteParam(req.Context(), "gateway", "paystack"))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if strings.Contains(envelope.Error.Message, "mismatch") {
		t.Fatalf("internal signature detail leaked: %q", envelope.Error.Message)
	}
}
