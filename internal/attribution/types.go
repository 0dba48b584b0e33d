package attribution

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/refermint-backend/pkg/enums"
)

// OrderContext carries the order fields the resolver chain inspects. Built by
// the ingest layer from a verified webhook payload.
type OrderContext struct {
	Shop           string
	ShopifyOrderID int64
	OrderNumber    string
	CreatedAt      time.Time
	CustomerEmail  string
	CustomerName   string
	Total          decimal.Decimal
	Currency       string
	ReferringSite  string
	DiscountCodes  []string
	// CarriedClickID is a click id attached to the order itself via cart or
	// note attributes, as opposed to one found in the referrer URL.
	CarriedClickID string
	IPHash         string
	UserAgentHash  string

	refQuery url.Values
}

// ReferrerParam returns the named query parameter from the order's referring
// site URL, or an empty string.
func (o *OrderContext) ReferrerParam(key string) string {
	if o.refQuery == nil {
		o.refQuery = url.Values{}
		if parsed, err := url.Parse(o.ReferringSite); err == nil {
			o.refQuery = parsed.Query()
		}
	}
	return o.refQuery.Get(key)
}

// ReferrerHost returns the lowercased host of the referring site, or "".
func (o *OrderContext) ReferrerHost() string {
	parsed, err := url.Parse(o.ReferringSite)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// Outcome is the discriminated result of one resolver strategy.
type Outcome struct {
	// Matched means the strategy credited an affiliate.
	Matched bool
	// Terminal stops the chain without crediting anyone. Set by the
	// internal-traffic check, which no later strategy may override.
	Terminal    bool
	AffiliateID uuid.UUID
	ClickID     *uuid.UUID
	Type        enums.AttributionType
	// Reason annotates terminal and audit outcomes for logging.
	Reason string
}

// NoMatch is the zero outcome, returned when a strategy does not apply.
func NoMatch() Outcome { return Outcome{} }

// Strategy is one step of the resolver fallback chain. Strategies are tried
// in priority order and the first Matched or Terminal outcome wins.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, order *OrderContext) (Outcome, error)
}
