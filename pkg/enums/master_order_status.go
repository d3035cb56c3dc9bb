package enums

import "fmt"

// MasterOrderStatus is the aggregate status derived from a master order's
// vendor orders.
type MasterOrderStatus string

const (
	MasterOrderStatusConfirmed        MasterOrderStatus = "confirmed"
	MasterOrderStatusProcessing       MasterOrderStatus = "processing"
	MasterOrderStatusPartiallyShipped MasterOrderStatus = "partially_shipped"
	MasterOrderStatusDelivered        MasterOrderStatus = "delivered"
	MasterOrderStatusCancelled        MasterOrderStatus = "cancelled"
)

var validMasterOrderStatuses = []MasterOrderStatus{
	MasterOrderStatusConfirmed,
	MasterOrderStatusProcessing,
	MasterOrderStatusPartiallyShipped,
	MasterOrderStatusDelivered,
	MasterOrderStatusCancelled,
}

// String implements fmt.Stringer.
func (m MasterOrderStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MasterOrderStatus.
func (m MasterOrderStatus) IsValid() bool {
	for _, candidate := range validMasterOrderStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMasterOrderStatus converts raw input into a MasterOrderStatus.
func ParseMasterOrderStatus(value string) (MasterOrderStatus, error) {
	for _, candidate := range validMasterOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid master order status %q", value)
}
