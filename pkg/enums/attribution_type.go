package enums

import "fmt"

// AttributionType identifies the resolver method that credited an order.
type AttributionType string

const (
	AttributionTypeLink        AttributionType = "link"
	AttributionTypeCoupon      AttributionType = "coupon"
	AttributionTypeFingerprint AttributionType = "fingerprint"
	AttributionTypeURLParam    AttributionType = "url_param"
)

var validAttributionTypes = []AttributionType{
	AttributionTypeLink,
	AttributionTypeCoupon,
	AttributionTypeFingerprint,
	AttributionTypeURLParam,
}

// String implements fmt.Stringer.
func (a AttributionType) String() string {
	return string(a)
}

// IsValid reports whether the attribution type is recognized.
func (a AttributionType) IsValid() bool {
	for _, candidate := range validAttributionTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAttributionType converts a raw string into an AttributionType.
func ParseAttributionType(value string) (AttributionType, error) {
	for _, candidate := range validAttributionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid attribution type %q", value)
}
