package commissions

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	"github.com/angelmondragon/refermint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/refermint-backend/pkg/errors"
)

var oneHundred = decimal.NewFromInt(100)

// RuleSnapshot freezes the exact rule applied to a commission so later offer
// edits never change what was owed.
type RuleSnapshot struct {
	OfferID        string               `json:"offer_id"`
	CommissionType enums.CommissionType `json:"commission_type"`
	Value          decimal.Decimal      `json:"value"`
	RebillPolicy   enums.RebillPolicy   `json:"rebill_policy"`
	IsRebill       bool                 `json:"is_rebill"`
	PayoutTermDays int                  `json:"payout_term_days"`
}

// Compute applies the offer rule to an order subtotal. Shipping and tax are
// excluded because the basis is the subtotal, not the total. isRebill selects
// the offer's rebill rule, which may differ in type and value from the
// initial-payment rule.
func Compute(offer *models.Offer, subtotal decimal.Decimal, isRebill bool) (decimal.Decimal, RuleSnapshot, error) {
	if offer == nil {
		return decimal.Zero, RuleSnapshot{}, pkgerrors.New(pkgerrors.CodeInternal, "offer required")
	}

	ruleType := offer.CommissionType
	value := offer.CommissionValue
	if isRebill {
		ruleType, value = offer.RebillRule()
	}

	var amount decimal.Decimal
	switch ruleType {
	case enums.CommissionTypeFlatRate:
		amount = value
	case enums.CommissionTypePercentage:
		amount = subtotal.Mul(value).Div(oneHundred)
	default:
		return decimal.Zero, RuleSnapshot{}, pkgerrors.New(pkgerrors.CodeInternal, "unknown commission type "+ruleType.String())
	}

	snapshot := RuleSnapshot{
		OfferID:        offer.ID.String(),
		CommissionType: ruleType,
		Value:          value,
		RebillPolicy:   offer.RebillPolicy,
		IsRebill:       isRebill,
		PayoutTermDays: offer.PayoutTermDays,
	}
	return amount.Round(2), snapshot, nil
}

// RebillEligible decides whether a matched renewal may commission under the
// offer's rebill policy and the subscription's payment count. An ineligible
// renewal creates no commission and does not advance the payment counter.
func RebillEligible(offer *models.Offer, sub *models.SubscriptionAttribution) bool {
	if offer == nil || sub == nil || !sub.Active {
		return false
	}
	if !offer.RebillPolicy.AllowsRebills() {
		return false
	}
	if offer.RebillPolicy == enums.RebillPolicyCreditFirstOnly {
		max := offer.SubscriptionMaxPayments
		if sub.MaxPayments != nil {
			max = sub.MaxPayments
		}
		if max != nil && sub.PaymentsMade >= *max {
			return false
		}
	}
	return true
}
