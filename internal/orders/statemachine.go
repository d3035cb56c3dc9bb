package orders

import "github.com/multivendhq/multivend-backend/pkg/enums"

// vendorOrderTransitions is the strict fulfillment table. No implicit
// skips; cancelled is reachable only through the cancellation service.
var vendorOrderTransitions = map[enums.VendorOrderStatus][]enums.VendorOrderStatus{
	enums.VendorOrderStatusConfirmed:      {enums.VendorOrderStatusProcessing},
	enums.VendorOrderStatusProcessing:     {enums.VendorOrderStatusPacked},
	enums.VendorOrderStatusPacked:         {enums.VendorOrderStatusShipped},
	enums.VendorOrderStatusShipped:        {enums.VendorOrderStatusOutForDelivery, enums.VendorOrderStatusDelivered},
	enums.VendorOrderStatusOutForDelivery: {enums.VendorOrderStatusDelivered},
}

// statusTimestampColumn maps each reachable status to the column stamped
// when the order enters it.
var statusTimestampColumn = map[enums.VendorOrderStatus]string{
	enums.VendorOrderStatusProcessing:     "processing_at",
	enums.VendorOrderStatusPacked:         "packed_at",
	enums.VendorOrderStatusShipped:        "shipped_at",
	enums.VendorOrderStatusOutForDelivery: "out_for_delivery_at",
	enums.VendorOrderStatusDelivered:      "delivered_at",
}

func transitionAllowed(from, to enums.VendorOrderStatus) bool {
	for _, candidate := range vendorOrderTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
