package orders

import (
	"github.com/google/uuid"

	"github.com/multivendhq/multivend-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once per committed order-creation
// transaction.
type OrderCreatedEvent struct {
	MasterOrderID  uuid.UUID   `json:"master_order_id"`
	OrderNumber    string      `json:"order_number"`
	BuyerKey       string      `json:"buyer_key"`
	VendorOrderIDs []uuid.UUID `json:"vendor_order_ids"`
	TotalCents     int64       `json:"total_cents"`
	Currency       string      `json:"currency"`
}

// VendorOrderStatusChangedEvent is emitted on every fulfillment transition.
type VendorOrderStatusChangedEvent struct {
	VendorOrderID uuid.UUID               `json:"vendor_order_id"`
	MasterOrderID uuid.UUID               `json:"master_order_id"`
	VendorID      uuid.UUID               `json:"vendor_id"`
	From          enums.VendorOrderStatus `json:"from"`
	To            enums.VendorOrderStatus `json:"to"`
}

// VendorOrderCancelledEvent is emitted per cancelled vendor order.
type VendorOrderCancelledEvent struct {
	VendorOrderID uuid.UUID `json:"vendor_order_id"`
	MasterOrderID uuid.UUID `json:"master_order_id"`
	VendorID      uuid.UUID `json:"vendor_id"`
	Reason        string    `json:"reason,omitempty"`
}

// OrderCancelledEvent is emitted when cancellation cascades to the master.
type OrderCancelledEvent struct {
	MasterOrderID uuid.UUID `json:"master_order_id"`
	OrderNumber   string    `json:"order_number"`
	Reason        string    `json:"reason,omitempty"`
}
