package orders

import "github.com/multivendhq/multivend-backend/pkg/enums"

// ResolveMasterStatus derives a master order's status from its vendor
// orders' statuses, first match wins:
//
//	all cancelled  -> cancelled
//	all delivered  -> delivered
//	any shipped    -> partially_shipped
//	all confirmed  -> confirmed
//	any processing -> processing
//	otherwise      -> the stored fallback status
//
// The function is pure and counts statuses, so any permutation of the same
// multiset yields the same result. Mixed sets no rule covers (for example
// delivered alongside packed) keep the last stored status rather than
// guessing.
func ResolveMasterStatus(statuses []enums.VendorOrderStatus, fallback enums.MasterOrderStatus) enums.MasterOrderStatus {
	if len(statuses) == 0 {
		return fallback
	}

	counts := make(map[enums.VendorOrderStatus]int, len(statuses))
	for _, status := range statuses {
		counts[status]++
	}
	total := len(statuses)

	switch {
	case counts[enums.VendorOrderStatusCancelled] == total:
		return enums.MasterOrderStatusCancelled
	case counts[enums.VendorOrderStatusDelivered] == total:
		return enums.MasterOrderStatusDelivered
	case counts[enums.VendorOrderStatusShipped] > 0:
		return enums.MasterOrderStatusPartiallyShipped
	case counts[enums.VendorOrderStatusConfirmed] == total:
		return enums.MasterOrderStatusConfirmed
	case counts[enums.VendorOrderStatusProcessing] > 0:
		return enums.MasterOrderStatusProcessing
	default:
		return fallback
	}
}
