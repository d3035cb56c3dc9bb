package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/multivendhq/multivend-backend/api/middleware"
	"github.com/multivendhq/multivend-backend/api/responses"
	"github.com/multivendhq/multivend-backend/api/validators"
	checkoutsvc "github.com/multivendhq/multivend-backend/internal/checkout"
	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
	"github.com/multivendhq/multivend-backend/pkg/logger"
	"github.com/multivendhq/multivend-backend/pkg/types"
)

// StartCheckout opens a checkout session over the buyer's live cart.
func StartCheckout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload startCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Start(r.Context(), checkoutsvc.StartInput{
			BuyerKey: middleware.BuyerKeyFromContext(r.Context()),
			Email:    payload.Email,
			Phone:    payload.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newSessionResponse(session))
	}
}

// GetCheckoutSession returns the session only to the buyer who opened it.
func GetCheckoutSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		sessionID, err := validators.ParseUUIDParam(r, "session_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Get(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if session.BuyerKey != middleware.BuyerKeyFromContext(r.Context()) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found"))
			return
		}

		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

func SetCheckoutAddress(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		sessionID, err := validators.ParseUUIDParam(r, "session_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addressRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.SetAddress(r.Context(), sessionID, types.Address{
			Line1:      validators.SanitizeString(payload.Line1, 200),
			Line2:      validators.SanitizeString(payload.Line2, 200),
			City:       validators.SanitizeString(payload.City, 100),
			State:      validators.SanitizeString(payload.State, 100),
			PostalCode: validators.SanitizeString(payload.PostalCode, 20),
			Country:    validators.SanitizeString(payload.Country, 2),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

func SetCheckoutShipping(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		sessionID, err := validators.ParseUUIDParam(r, "session_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload shippingMethodRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParseShippingMethod(payload.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping method"))
			return
		}

		session, err := svc.SetShippingMethod(r.Context(), sessionID, method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

func SetCheckoutPaymentMethod(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		sessionID, err := validators.ParseUUIDParam(r, "session_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload paymentMethodRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(payload.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		session, err := svc.SetPaymentMethod(r.Context(), sessionID, checkoutsvc.PaymentSelection{
			Method:  method,
			Gateway: payload.Gateway,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

func ApplyCheckoutCoupon(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		sessionID, err := validators.ParseUUIDParam(r, "session_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload couponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.ApplyCoupon(r.Context(), sessionID, payload.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

type startCheckoutRequest struct {
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

type addressRequest struct {
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2" validate:"omitempty,max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"required,max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,len=2"`
}

type shippingMethodRequest struct {
	Method string `json:"method" validate:"required"`
}

type paymentMethodRequest struct {
	Method  string `json:"method" validate:"required"`
	Gateway string `json:"gateway" validate:"omitempty,max=50"`
}

type couponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type sessionResponse struct {
	SessionID       uuid.UUID      `json:"session_id"`
	Status          string         `json:"status"`
	Email           string         `json:"email,omitempty"`
	Phone           string         `json:"phone,omitempty"`
	ShippingAddress *types.Address `json:"shipping_address,omitempty"`
	ShippingMethod  string         `json:"shipping_method,omitempty"`
	PaymentMethod   string         `json:"payment_method,omitempty"`
	Gateway         string         `json:"gateway,omitempty"`
	SubtotalCents   int64          `json:"subtotal_cents"`
	TaxCents        int64          `json:"tax_cents"`
	ShippingCents   int64          `json:"shipping_cents"`
	DiscountCents   int64          `json:"discount_cents"`
	TotalCents      int64          `json:"total_cents"`
	ExpiresAt       time.Time      `json:"expires_at"`
}

func newSessionResponse(session *models.CheckoutSession) sessionResponse {
	return sessionResponse{
		SessionID:       session.ID,
		Status:          string(session.Status),
		Email:           session.Email,
		Phone:           session.Phone,
		ShippingAddress: session.ShippingAddress,
		ShippingMethod:  string(session.ShippingMethod),
		PaymentMethod:   string(session.PaymentMethod),
		Gateway:         session.Gateway,
		SubtotalCents:   session.SubtotalCents,
		TaxCents:        session.TaxCents,
		ShippingCents:   session.ShippingCents,
		DiscountCents:   session.DiscountCents,
		TotalCents:      session.TotalCents,
		ExpiresAt:       session.ExpiresAt,
	}
}
