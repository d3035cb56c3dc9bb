package gateways

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
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

const paystackName = "paystack"

// PaystackAdapter integrates the Paystack transactions REST API.
type PaystackAdapter struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

func NewPaystackAdapter(cfg config.GatewayConfig) *PaystackAdapter {
	return &PaystackAdapter{
		secretKey:  cfg.PaystackSecretKey,
		baseURL:    cfg.PaystackBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *PaystackAdapter) Name() string {
	return paystackName
}

func (a *PaystackAdapter) SupportsMethod(method enums.PaymentMethod) bool {
	switch method {
	case enums.PaymentMethodCard, enums.PaymentMethodBankTransfer:
		return true
	default:
		return false
	}
}

type paystackInitializeRequest struct {
	Email     string `json:"email"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

func (a *PaystackAdapter) Initiate(ctx context.Context, intent PaymentIntent) (*InitiateResult, error) {
	body := paystackInitializeRequest{
		Email:     intent.Email,
		Amount:    intent.AmountCents,
		Currency:  intent.Currency,
		Reference: intent.PaymentID,
	}
	raw, data, err := a.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}
	var resp paystackInitializeData
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paystack initialize response")
	}
	return &InitiateResult{
		TransactionID: resp.Reference,
		ReferenceID:   resp.AccessCode,
		RedirectURL:   resp.AuthorizationURL,
		Status:        enums.PaymentStatusPending,
		RawResponse:   raw,
	}, nil
}

type paystackTransactionData struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	GatewayResponse string `json:"gateway_response"`
}

func (a *PaystackAdapter) Verify(ctx context.Context, transactionID, referenceID string) (*VerifyResult, error) {
	raw, data, err := a.do(ctx, http.MethodGet, "/transaction/verify/"+transactionID, nil)
	if err != nil {
		return nil, err
	}
	var resp paystackTransactionData
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paystack verify response")
	}
	result := &VerifyResult{AmountCents: resp.Amount, RawResponse: raw}
	switch resp.Status {
	case "success":
		result.Status = enums.PaymentStatusCompleted
	case "failed", "abandoned", "reversed":
		result.Status = enums.PaymentStatusFailed
	default:
		result.Status = enums.PaymentStatusPending
	}
	return result, nil
}

type paystackRefundRequest struct {
	Transaction  string `json:"transaction"`
	Amount       int64  `json:"amount,omitempty"`
	CustomerNote string `json:"customer_note,omitempty"`
}

type paystackRefundData struct {
	ID     int64  `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

func (a *PaystackAdapter) Refund(ctx context.Context, transactionID string, amountCents int64, reason string) (*RefundResult, error) {
	body := paystackRefundRequest{
		Transaction:  transactionID,
		Amount:       amountCents,
		CustomerNote: reason,
	}
	raw, data, err := a.do(ctx, http.MethodPost, "/refund", body)
	if err != nil {
		return nil, err
	}
	var resp paystackRefundData
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paystack refund response")
	}
	status := enums.PaymentStatusProcessing
	if resp.Status == "processed" {
		status = enums.PaymentStatusRefunded
	}
	return &RefundResult{
		RefundID:    fmt.Sprintf("%d", resp.ID),
		Status:      status,
		AmountCents: resp.Amount,
		RawResponse: raw,
	}, nil
}

// ValidateSignature checks the x-paystack-signature HMAC-SHA512 over the raw
// body against the secret key.
func (a *PaystackAdapter) ValidateSignature(req WebhookRequest) bool {
	provided := req.Headers.Get("X-Paystack-Signature")
	if provided == "" || a.secretKey == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(a.secretKey))
	mac.Write(req.Body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}

type paystackWebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID              int64  `json:"id"`
		Reference       string `json:"reference"`
		Amount          int64  `json:"amount"`
		Status          string `json:"status"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

// HandleWebhook normalizes charge.success and charge.failed events. Paystack
// sends no event id header, so the reconciliation layer derives one from the
// body.
func (a *PaystackAdapter) HandleWebhook(req WebhookRequest) NormalizedEvent {
	event := NormalizedEvent{Status: enums.WebhookEventIgnored}

	var payload paystackWebhookPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return event
	}

	event.TransactionID = payload.Data.Reference
	event.ReferenceID = fmt.Sprintf("%d", payload.Data.ID)
	event.AmountCents = payload.Data.Amount

	switch payload.Event {
	case "charge.success":
		event.Status = enums.WebhookEventSuccess
	case "charge.failed":
		event.Status = enums.WebhookEventFailed
		event.ErrorMessage = payload.Data.GatewayResponse
	}
	if event.TransactionID == "" {
		event.Status = enums.WebhookEventIgnored
	}
	return event
}

func (a *PaystackAdapter) do(ctx context.Context, method, path string, body any) (raw []byte, data json.RawMessage, err error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode paystack request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build paystack request")
	}
	req.Header.Set("Authorization", "Bearer "+a.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call paystack")
	}
	defer resp.Body.Close()

	raw, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read paystack response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("paystack returned %d", resp.StatusCode)).
			WithDetails(map[string]any{"body": string(raw)})
	}

	var envelope paystackEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paystack envelope")
	}
	if !envelope.Status {
		return nil, nil, pkgerrors.New(pkgerrors.CodeDependency, "paystack rejected request").
			WithDetails(map[string]any{"message": envelope.Message})
	}
	return raw, envelope.Data, nil
}
