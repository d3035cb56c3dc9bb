package controllers

import (
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/multivendhq/multivend-backend/api/middleware"
	"github.com/multivendhq/multivend-backend/api/responses"
	"github.com/multivendhq/multivend-backend/api/validators"
	ordersvc "github.com/multivendhq/multivend-backend/internal/orders"
	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
	"github.com/multivendhq/multivend-backend/pkg/logger"
	"github.com/multivendhq/multivend-backend/pkg/types"
)

// CreateOrder converts a paid-for checkout session into a master order.
func CreateOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		sessionID, err := validators.ParseUUIDParam(r, "session_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateOrder(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newMasterOrderResponse(order))
	}
}

// GetOrder returns a master order with its vendor partitions, scoped to the
// buyer who placed it.
func GetOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if key := middleware.BuyerKeyFromContext(r.Context()); key != "" && order.BuyerKey != key {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}

		responses.WriteSuccess(w, newMasterOrderResponse(order))
	}
}

func GetVendorOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		vendorOrderID, err := validators.ParseUUIDParam(r, "vendor_order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetVendorOrder(r.Context(), vendorOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newVendorOrderResponse(order))
	}
}

// TransitionVendorOrder advances one vendor order a single fulfillment step.
func TransitionVendorOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		vendorOrderID, err := validators.ParseUUIDParam(r, "vendor_order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		target, err := enums.ParseVendorOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}

		order, err := svc.Transition(r.Context(), ordersvc.TransitionInput{
			VendorOrderID: vendorOrderID,
			Target:        target,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newVendorOrderResponse(order))
	}
}

// ConfirmCashCollected records the courier's cash handover for a COD vendor
// order, unlocking its delivered transition.
func ConfirmCashCollected(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		vendorOrderID, err := validators.ParseUUIDParam(r, "vendor_order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.ConfirmCashCollected(r.Context(), vendorOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newVendorOrderResponse(order))
	}
}

// CancelOrder cancels the named vendor orders, or every cancellable one when
// the body names none.
func CancelOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CancelOrder(r.Context(), ordersvc.CancelInput{
			MasterOrderID:  orderID,
			VendorOrderIDs: payload.VendorOrderIDs,
			Reason:         validators.SanitizeString(payload.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newMasterOrderResponse(order))
	}
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

type cancelRequest struct {
	VendorOrderIDs []uuid.UUID `json:"vendor_order_ids" validate:"omitempty,dive,uuid4"`
	Reason         string      `json:"reason" validate:"omitempty,max=500"`
}

type masterOrderResponse struct {
	OrderID         uuid.UUID             `json:"order_id"`
	OrderNumber     string                `json:"order_number"`
	Status          string                `json:"status"`
	Email           string                `json:"email,omitempty"`
	ShippingAddress *types.Address        `json:"shipping_address,omitempty"`
	SubtotalCents   int64                 `json:"subtotal_cents"`
	TaxCents        int64                 `json:"tax_cents"`
	ShippingCents   int64                 `json:"shipping_cents"`
	DiscountCents   int64                 `json:"discount_cents"`
	TotalCents      int64                 `json:"total_cents"`
	CancelledAt     *time.Time            `json:"cancelled_at,omitempty"`
	VendorOrders    []vendorOrderResponse `json:"vendor_orders"`
	CreatedAt       time.Time             `json:"created_at"`
}

type vendorOrderResponse struct {
	VendorOrderID     uuid.UUID           `json:"vendor_order_id"`
	VendorOrderNumber string              `json:"vendor_order_number"`
	MasterOrderID     uuid.UUID           `json:"master_order_id"`
	VendorID          uuid.UUID           `json:"vendor_id"`
	Status            string              `json:"status"`
	PaymentMethod     string              `json:"payment_method"`
	IsCOD             bool                `json:"is_cod"`
	CODConfirmed      bool                `json:"cod_confirmed,omitempty"`
	SubtotalCents     int64               `json:"subtotal_cents"`
	TaxCents          int64               `json:"tax_cents"`
	ShippingCents     int64               `json:"shipping_cents"`
	TotalCents        int64               `json:"total_cents"`
	ShippedAt         *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt       *time.Time          `json:"cancelled_at,omitempty"`
	Items             []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Qty            int       `json:"qty"`
	SubtotalCents  int64     `json:"subtotal_cents"`
}

func newMasterOrderResponse(order *models.MasterOrder) masterOrderResponse {
	vendorOrders := make([]vendorOrderResponse, 0, len(order.VendorOrders))
	for i := range order.VendorOrders {
		vendorOrders = append(vendorOrders, newVendorOrderResponse(&order.VendorOrders[i]))
	}
	sort.Slice(vendorOrders, func(i, j int) bool {
		return vendorOrders[i].VendorOrderNumber < vendorOrders[j].VendorOrderNumber
	})

	return masterOrderResponse{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          string(order.Status),
		Email:           order.Email,
		ShippingAddress: order.ShippingAddress,
		SubtotalCents:   order.SubtotalCents,
		TaxCents:        order.TaxCents,
		ShippingCents:   order.ShippingCents,
		DiscountCents:   order.DiscountCents,
		TotalCents:      order.TotalCents,
		CancelledAt:     order.CancelledAt,
		VendorOrders:    vendorOrders,
		CreatedAt:       order.CreatedAt,
	}
}

func newVendorOrderResponse(order *models.VendorOrder) vendorOrderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:      item.ProductID,
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Qty:            item.Qty,
			SubtotalCents:  item.SubtotalCents,
		})
	}

	return vendorOrderResponse{
		VendorOrderID:     order.ID,
		VendorOrderNumber: order.VendorOrderNumber,
		MasterOrderID:     order.MasterOrderID,
		VendorID:          order.VendorID,
		Status:            string(order.Status),
		PaymentMethod:     string(order.PaymentMethod),
		IsCOD:             order.IsCOD,
		CODConfirmed:      order.CODConfirmed,
		SubtotalCents:     order.SubtotalCents,
		TaxCents:          order.TaxCents,
		ShippingCents:     order.ShippingCents,
		TotalCents:        order.TotalCents,
		ShippedAt:         order.ShippedAt,
		DeliveredAt:       order.DeliveredAt,
		CancelledAt:       order.CancelledAt,
		Items:             items,
	}
}
