package enums

import "fmt"

// VendorOrderStatus tracks the fulfillment lifecycle of a vendor order.
type VendorOrderStatus string

const (
	VendorOrderStatusConfirmed      VendorOrderStatus = "confirmed"
	VendorOrderStatusProcessing     VendorOrderStatus = "processing"
	VendorOrderStatusPacked         VendorOrderStatus = "packed"
	VendorOrderStatusShipped        VendorOrderStatus = "shipped"
	VendorOrderStatusOutForDelivery VendorOrderStatus = "out_for_delivery"
	VendorOrderStatusDelivered      VendorOrderStatus = "delivered"
	VendorOrderStatusCancelled      VendorOrderStatus = "cancelled"
)

var validVendorOrderStatuses = []VendorOrderStatus{
	VendorOrderStatusConfirmed,
	VendorOrderStatusProcessing,
	VendorOrderStatusPacked,
	VendorOrderStatusShipped,
	VendorOrderStatusOutForDelivery,
	VendorOrderStatusDelivered,
	VendorOrderStatusCancelled,
}

// String implements fmt.Stringer.
func (v VendorOrderStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known VendorOrderStatus.
func (v VendorOrderStatus) IsValid() bool {
	for _, candidate := range validVendorOrderStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseVendorOrderStatus converts raw input into a VendorOrderStatus.
func ParseVendorOrderStatus(value string) (VendorOrderStatus, error) {
	for _, candidate := range validVendorOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vendor order status %q", value)
}
