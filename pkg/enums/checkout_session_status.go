package enums

import "fmt"

// CheckoutSessionStatus tracks the staged progress of a checkout draft.
type CheckoutSessionStatus string

const (
	CheckoutSessionStatusDraft            CheckoutSessionStatus = "draft"
	CheckoutSessionStatusAddressSelected  CheckoutSessionStatus = "address_selected"
	CheckoutSessionStatusShippingSelected CheckoutSessionStatus = "shipping_selected"
	CheckoutSessionStatusPaymentSelected  CheckoutSessionStatus = "payment_selected"
	CheckoutSessionStatusCompleted        CheckoutSessionStatus = "completed"
)

var validCheckoutSessionStatuses = []CheckoutSessionStatus{
	CheckoutSessionStatusDraft,
	CheckoutSessionStatusAddressSelected,
	CheckoutSessionStatusShippingSelected,
	CheckoutSessionStatusPaymentSelected,
	CheckoutSessionStatusCompleted,
}

// String implements fmt.Stringer.
func (c CheckoutSessionStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CheckoutSessionStatus.
func (c CheckoutSessionStatus) IsValid() bool {
	for _, candidate := range validCheckoutSessionStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCheckoutSessionStatus converts raw input into a CheckoutSessionStatus.
func ParseCheckoutSessionStatus(value string) (CheckoutSessionStatus, error) {
	for _, candidate := range validCheckoutSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout session status %q", value)
}
