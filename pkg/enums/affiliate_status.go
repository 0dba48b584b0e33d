package enums

import "fmt"

// AffiliateStatus tracks whether an affiliate can receive new attributions.
type AffiliateStatus string

const (
	AffiliateStatusActive    AffiliateStatus = "active"
	AffiliateStatusInactive  AffiliateStatus = "inactive"
	AffiliateStatusSuspended AffiliateStatus = "suspended"
)

var validAffiliateStatuses = []AffiliateStatus{
	AffiliateStatusActive,
	AffiliateStatusInactive,
	AffiliateStatusSuspended,
}

// String implements fmt.Stringer.
func (s AffiliateStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is recognized.
func (s AffiliateStatus) IsValid() bool {
	for _, candidate := range validAffiliateStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAffiliateStatus converts a raw string into an AffiliateStatus.
func ParseAffiliateStatus(value string) (AffiliateStatus, error) {
	for _, candidate := range validAffiliateStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid affiliate status %q", value)
}
