package enums

import "fmt"

// FraudFlagType identifies which heuristic raised a fraud flag.
type FraudFlagType string

const (
	FraudFlagTypeSelfReferral    FraudFlagType = "self_referral"
	FraudFlagTypeExcessiveClicks FraudFlagType = "excessive_clicks"
	FraudFlagTypeHighRefundRate  FraudFlagType = "high_refund_rate"
)

var validFraudFlagTypes = []FraudFlagType{
	FraudFlagTypeSelfReferral,
	FraudFlagTypeExcessiveClicks,
	FraudFlagTypeHighRefundRate,
}

// String implements fmt.Stringer.
func (f FraudFlagType) String() string {
	return string(f)
}

// IsValid reports whether the flag type is recognized.
func (f FraudFlagType) IsValid() bool {
	for _, candidate := range validFraudFlagTypes {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFraudFlagType converts a raw string into a FraudFlagType.
func ParseFraudFlagType(value string) (FraudFlagType, error) {
	for _, candidate := range validFraudFlagTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fraud flag type %q", value)
}
