package enums

import "fmt"

// RefundStatus follows a cancelled, already paid order through its refund:
// none -> requested -> succeeded | failed. Each step is a guarded single write.
type RefundStatus string

const (
	RefundStatusNone      RefundStatus = "none"
	RefundStatusRequested RefundStatus = "requested"
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
)

func (r RefundStatus) String() string {
	return string(r)
}

func (r RefundStatus) IsValid() bool {
	switch r {
	case RefundStatusNone, RefundStatusRequested, RefundStatusSucceeded, RefundStatusFailed:
		return true
	}
	return false
}

// IsSettled reports whether the gateway has answered the refund request.
func (r RefundStatus) IsSettled() bool {
	return r == RefundStatusSucceeded || r == RefundStatusFailed
}

// RefundOutcome is the terminal status for a gateway answer.
func RefundOutcome(succeeded bool) RefundStatus {
	if succeeded {
		return RefundStatusSucceeded
	}
	return RefundStatusFailed
}

func ParseRefundStatus(value string) (RefundStatus, error) {
	r := RefundStatus(value)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid refund status %q", value)
	}
	return r, nil
}
