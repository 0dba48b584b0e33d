package enums

import "fmt"

// CommissionStatus tracks the payout lifecycle of a commission.
type CommissionStatus string

const (
	CommissionStatusPending  CommissionStatus = "pending"
	CommissionStatusEligible CommissionStatus = "eligible"
	CommissionStatusApproved CommissionStatus = "approved"
	CommissionStatusPaid     CommissionStatus = "paid"
	CommissionStatusReversed CommissionStatus = "reversed"
)

var validCommissionStatuses = []CommissionStatus{
	CommissionStatusPending,
	CommissionStatusEligible,
	CommissionStatusApproved,
	CommissionStatusPaid,
	CommissionStatusReversed,
}

// OpenCommissionStatuses are the statuses that still owe the affiliate money
// and are therefore subject to re-attribution reversal.
var OpenCommissionStatuses = []CommissionStatus{
	CommissionStatusPending,
	CommissionStatusEligible,
	CommissionStatusApproved,
}

// String implements fmt.Stringer.
func (s CommissionStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is recognized.
func (s CommissionStatus) IsValid() bool {
	for _, candidate := range validCommissionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsOpen reports whether the commission is still reversible.
func (s CommissionStatus) IsOpen() bool {
	for _, candidate := range OpenCommissionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCommissionStatus converts a raw string into a CommissionStatus.
func ParseCommissionStatus(value string) (CommissionStatus, error) {
	for _, candidate := range validCommissionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid commission status %q", value)
}
