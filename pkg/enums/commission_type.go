package enums

import "fmt"

// CommissionType selects how a commission amount is derived from an order.
type CommissionType string

const (
	CommissionTypeFlatRate   CommissionType = "flat_rate"
	CommissionTypePercentage CommissionType = "percentage"
)

var validCommissionTypes = []CommissionType{
	CommissionTypeFlatRate,
	CommissionTypePercentage,
}

// String implements fmt.Stringer.
func (c CommissionType) String() string {
	return string(c)
}

// IsValid reports whether the commission type is recognized.
func (c CommissionType) IsValid() bool {
	for _, candidate := range validCommissionTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCommissionType converts a raw string into a CommissionType.
func ParseCommissionType(value string) (CommissionType, error) {
	for _, candidate := range validCommissionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid commission type %q", value)
}
