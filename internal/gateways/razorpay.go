package gateways

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/multivendhq/multivend-backend/pkg/config"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
)

const razorpayName = "razorpay"

// RazorpayAdapter integrates the Razorpay orders/payments REST API.
type RazorpayAdapter struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

func NewRazorpayAdapter(cfg config.GatewayConfig) *RazorpayAdapter {
	return &RazorpayAdapter{
		keyID:         cfg.RazorpayKeyID,
		keySecret:     cfg.RazorpayKeySecret,
		webhookSecret: cfg.RazorpayWebhookSecret,
		baseURL:       cfg.RazorpayBaseURL,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *RazorpayAdapter) Name() string {
	return razorpayName
}

func (a *RazorpayAdapter) SupportsMethod(method enums.PaymentMethod) bool {
	switch method {
	case enums.PaymentMethodCard, enums.PaymentMethodUPI, enums.PaymentMethodWallet, enums.PaymentMethodBankTransfer:
		return true
	default:
		return false
	}
}

type razorpayOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type razorpayOrderResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Receipt string `json:"receipt"`
}

func (a *RazorpayAdapter) Initiate(ctx context.Context, intent PaymentIntent) (*InitiateResult, error) {
	body := razorpayOrderRequest{
		Amount:   intent.AmountCents,
		Currency: intent.Currency,
		Receipt:  intent.OrderNumber,
	}
	raw, err := a.do(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		return nil, err
	}
	var resp razorpayOrderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode razorpay order response")
	}
	return &InitiateResult{
		TransactionID: resp.ID,
		ReferenceID:   resp.Receipt,
		Status:        enums.PaymentStatusPending,
		RawResponse:   raw,
	}, nil
}

type razorpayPaymentCollection struct {
	Items []struct {
		ID     string `json:"id"`
		Amount int64  `json:"amount"`
		Status string `json:"status"`
	} `json:"items"`
}

func (a *RazorpayAdapter) Verify(ctx context.Context, transactionID, referenceID string) (*VerifyResult, error) {
	raw, err := a.do(ctx, http.MethodGet, fmt.Sprintf("/orders/%s/payments", transactionID), nil)
	if err != nil {
		return nil, err
	}
	var resp razorpayPaymentCollection
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode razorpay payments response")
	}
	result := &VerifyResult{Status: enums.PaymentStatusPending, RawResponse: raw}
	for _, item := range resp.Items {
		switch item.Status {
		case "captured":
			result.Status = enums.PaymentStatusCompleted
			result.AmountCents = item.Amount
			return result, nil
		case "failed":
			result.Status = enums.PaymentStatusFailed
			result.AmountCents = item.Amount
		}
	}
	return result, nil
}

type razorpayRefundRequest struct {
	Amount int64             `json:"amount"`
	Notes  map[string]string `json:"notes,omitempty"`
}

type razorpayRefundResponse struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

func (a *RazorpayAdapter) Refund(ctx context.Context, transactionID string, amountCents int64, reason string) (*RefundResult, error) {
	body := razorpayRefundRequest{Amount: amountCents}
	if reason != "" {
		body.Notes = map[string]string{"reason": reason}
	}
	raw, err := a.do(ctx, http.MethodPost, fmt.Sprintf("/payments/%s/refund", transactionID), body)
	if err != nil {
		return nil, err
	}
	var resp razorpayRefundResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode razorpay refund response")
	}
	status := enums.PaymentStatusRefunded
	if resp.Status == "pending" {
		status = enums.PaymentStatusProcessing
	}
	return &RefundResult{
		RefundID:    resp.ID,
		Status:      status,
		AmountCents: resp.Amount,
		RawResponse: raw,
	}, nil
}

// ValidateSignature checks the X-Razorpay-Signature HMAC over the raw body.
func (a *RazorpayAdapter) ValidateSignature(req WebhookRequest) bool {
	provided := req.Headers.Get("X-Razorpay-Signature")
	if provided == "" || a.webhookSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	mac.Write(req.Body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}

type razorpayWebhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Amount           int64  `json:"amount"`
				Status           string `json:"status"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook normalizes payment.captured / payment.failed events. Anything
// else, including malformed bodies, normalizes to ignored.
func (a *RazorpayAdapter) HandleWebhook(req WebhookRequest) NormalizedEvent {
	event := NormalizedEvent{
		EventID: req.Headers.Get("X-Razorpay-Event-Id"),
		Status:  enums.WebhookEventIgnored,
	}

	var payload razorpayWebhookPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return event
	}

	entity := payload.Payload.Payment.Entity
	event.TransactionID = entity.OrderID
	event.ReferenceID = entity.ID
	event.AmountCents = entity.Amount

	switch payload.Event {
	case "payment.captured":
		event.Status = enums.WebhookEventSuccess
	case "payment.failed":
		event.Status = enums.WebhookEventFailed
		event.ErrorMessage = entity.ErrorDescription
	}
	if event.TransactionID == "" {
		event.Status = enums.WebhookEventIgnored
	}
	return event
}

func (a *RazorpayAdapter) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode razorpay request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build razorpay request")
	}
	req.SetBasicAuth(a.keyID, a.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call razorpay")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read razorpay response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("razorpay returned %d", resp.StatusCode)).
			WithDetails(map[string]any{"body": string(raw)})
	}
	return raw, nil
}
