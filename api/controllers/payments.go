package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/multivendhq/multivend-backend/api/responses"
	"github.com/multivendhq/multivend-backend/api/validators"
	paymentsvc "github.com/multivendhq/multivend-backend/internal/payments"
	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
	"github.com/multivendhq/multivend-backend/pkg/logger"
)

// InitiatePayment starts collection for a master order. Online methods hand
// back a redirect URL; COD settles into pending ledger rows immediately.
func InitiatePayment(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var payload initiatePaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(payload.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		result, err := svc.InitiatePayment(r.Context(), paymentsvc.InitiateInput{
			MasterOrderID: payload.MasterOrderID,
			Gateway:       payload.Gateway,
			Method:        method,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := newPaymentResponse(result.Payment)
		resp.RedirectURL = result.RedirectURL
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

func GetPayment(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		paymentID, err := validators.ParseUUIDParam(r, "payment_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.GetPayment(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPaymentResponse(payment))
	}
}

// VerifyPayment asks the gateway for the authoritative status and reconciles
// local state with the answer.
func VerifyPayment(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		paymentID, err := validators.ParseUUIDParam(r, "payment_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.VerifyPayment(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPaymentResponse(payment))
	}
}

func RefundPayment(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		paymentID, err := validators.ParseUUIDParam(r, "payment_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Refund(r.Context(), paymentsvc.RefundInput{
			PaymentID:   paymentID,
			AmountCents: payload.AmountCents,
			Reason:      validators.SanitizeString(payload.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPaymentResponse(payment))
	}
}

type initiatePaymentRequest struct {
	MasterOrderID uuid.UUID `json:"master_order_id" validate:"required,uuid4"`
	Gateway       string    `json:"gateway" validate:"omitempty,max=50"`
	Method        string    `json:"method" validate:"required"`
}

type refundRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"omitempty,max=500"`
}

type paymentResponse struct {
	PaymentID     uuid.UUID                `json:"payment_id"`
	MasterOrderID *uuid.UUID               `json:"master_order_id,omitempty"`
	Gateway       string                   `json:"gateway"`
	Method        string                   `json:"method"`
	Status        string                   `json:"status"`
	AmountCents   int64                    `json:"amount_cents"`
	Currency      string                   `json:"currency"`
	TransactionID string                   `json:"transaction_id,omitempty"`
	ReferenceID   string                   `json:"reference_id,omitempty"`
	FailureReason *string                  `json:"failure_reason,omitempty"`
	PaidAt        *time.Time               `json:"paid_at,omitempty"`
	RedirectURL   string                   `json:"redirect_url,omitempty"`
	Attempts      []paymentAttemptResponse `json:"attempts,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
}

type paymentAttemptResponse struct {
	AttemptNumber int        `json:"attempt_number"`
	Gateway       string     `json:"gateway"`
	Status        string     `json:"status"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}

func newPaymentResponse(payment *models.Payment) paymentResponse {
	attempts := make([]paymentAttemptResponse, 0, len(payment.Attempts))
	for _, attempt := range payment.Attempts {
		attempts = append(attempts, paymentAttemptResponse{
			AttemptNumber: attempt.AttemptNumber,
			Gateway:       attempt.Gateway,
			Status:        string(attempt.Status),
			FailureReason: attempt.FailureReason,
			ProcessedAt:   attempt.ProcessedAt,
		})
	}

	return paymentResponse{
		PaymentID:     payment.ID,
		MasterOrderID: payment.MasterOrderID,
		Gateway:       payment.Gateway,
		Method:        string(payment.Method),
		Status:        string(payment.Status),
		AmountCents:   payment.AmountCents,
		Currency:      payment.Currency,
		TransactionID: payment.TransactionID,
		ReferenceID:   payment.ReferenceID,
		FailureReason: payment.FailureReason,
		PaidAt:        payment.PaidAt,
		Attempts:      attempts,
		CreatedAt:     payment.CreatedAt,
	}
}
