package enums

import "fmt"

// CancelReason records who moved an order to cancelled.
type CancelReason string

const (
	CancelReasonCustomer   CancelReason = "customer_cancelled"
	CancelReasonRestaurant CancelReason = "restaurant_rejected"
)

var validCancelReasons = []CancelReason{
	CancelReasonCustomer,
	CancelReasonRestaurant,
}

// IsValid reports whether the value is a known CancelReason.
func (r CancelReason) IsValid() bool {
	for _, candidate := range validCancelReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseCancelReason converts raw input into a CancelReason.
func ParseCancelReason(value string) (CancelReason, error) {
	for _, candidate := range validCancelReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cancel reason %q", value)
}
