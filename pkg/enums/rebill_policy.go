package enums

import "fmt"

// RebillPolicy controls whether subscription renewals commission.
type RebillPolicy string

const (
	// RebillPolicyNo never commissions beyond the initial order.
	RebillPolicyNo RebillPolicy = "no"
	// RebillPolicyCreditAll commissions every renewal under the offer rule.
	RebillPolicyCreditAll RebillPolicy = "credit_all"
	// RebillPolicyCreditNone commissions the initial order only.
	RebillPolicyCreditNone RebillPolicy = "credit_none"
	// RebillPolicyCreditFirstOnly commissions the first N renewals, bounded by
	// the offer's subscription_max_payments.
	RebillPolicyCreditFirstOnly RebillPolicy = "credit_first_only"
)

var validRebillPolicies = []RebillPolicy{
	RebillPolicyNo,
	RebillPolicyCreditAll,
	RebillPolicyCreditNone,
	RebillPolicyCreditFirstOnly,
}

// String implements fmt.Stringer.
func (r RebillPolicy) String() string {
	return string(r)
}

// IsValid reports whether the policy is recognized.
func (r RebillPolicy) IsValid() bool {
	for _, candidate := range validRebillPolicies {
		if candidate == r {
			return true
		}
	}
	return false
}

// AllowsRebills reports whether any renewal can ever commission.
func (r RebillPolicy) AllowsRebills() bool {
	return r == RebillPolicyCreditAll || r == RebillPolicyCreditFirstOnly
}

// ParseRebillPolicy converts a raw string into a RebillPolicy.
func ParseRebillPolicy(value string) (RebillPolicy, error) {
	for _, candidate := range validRebillPolicies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rebill policy %q", value)
}
