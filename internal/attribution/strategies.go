package attribution

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	"github.com/angelmondragon/refermint-backend/pkg/enums"
	"github.com/angelmondragon/refermint-backend/pkg/logger"
)

type affiliateFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Affiliate, error)
	FindByNumber(ctx context.Context, shop string, number int64) (*models.Affiliate, error)
	FindByCoupon(ctx context.Context, shop, code string) (*models.Affiliate, error)
	FindByEmail(ctx context.Context, shop, email string) (*models.Affiliate, error)
}

type clickFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Click, error)
	FindLatestByAffiliateBetween(ctx context.Context, affiliateID uuid.UUID, from, to time.Time) (*models.Click, error)
	FindByFingerprint(ctx context.Context, shop, ipHash, uaHash string, since time.Time) ([]models.Click, error)
}

const (
	refParamKey     = "ref"
	clickIDParamKey = "click_id"

	refValueInternal = "internal"
	refValueDirect   = "direct"
)

var searchEngineHosts = []string{
	"google.",
	"bing.com",
	"yahoo.",
	"duckduckgo.com",
	"baidu.com",
	"yandex.",
}

// internalTrafficStrategy terminates the chain for the shop's own traffic and
// for organic search arrivals that carry no click id. Runs first; its verdict
// cannot be overridden by any later method.
type internalTrafficStrategy struct{}

func (internalTrafficStrategy) Name() string { return "internal_traffic" }

func (internalTrafficStrategy) Resolve(_ context.Context, order *OrderContext) (Outcome, error) {
	ref := strings.ToLower(order.ReferrerParam(refParamKey))
	if ref == refValueInternal || ref == refValueDirect {
		return Outcome{Terminal: true, Reason: "referrer marked " + ref}, nil
	}
	if order.ReferrerParam(clickIDParamKey) == "" {
		host := order.ReferrerHost()
		for _, engine := range searchEngineHosts {
			if strings.Contains(host, engine) {
				return Outcome{Terminal: true, Reason: "organic search traffic"}, nil
			}
		}
	}
	return NoMatch(), nil
}

// couponStrategy credits the affiliate whose assigned discount code was used
// on the order. Coupon attribution is independent of click tracking, so no
// click id is attached.
type couponStrategy struct {
	affiliates affiliateFinder
}

func (couponStrategy) Name() string { return "coupon" }

func (s couponStrategy) Resolve(ctx context.Context, order *OrderContext) (Outcome, error) {
	for _, code := range order.DiscountCodes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		affiliate, err := s.affiliates.FindByCoupon(ctx, order.Shop, code)
		if err != nil {
			return NoMatch(), err
		}
		if affiliate.IsActive() {
			return Outcome{
				Matched:     true,
				AffiliateID: affiliate.ID,
				Type:        enums.AttributionTypeCoupon,
			}, nil
		}
	}
	return NoMatch(), nil
}

// clickIDStrategy validates an explicit click id against the owning
// affiliate's attribution window. Used both for the referrer URL parameter and
// for a click id carried on the order itself.
type clickIDStrategy struct {
	name              string
	clicks            clickFinder
	affiliates        affiliateFinder
	defaultWindowDays int
	clickID           func(*OrderContext) string
}

func (s clickIDStrategy) Name() string { return s.name }

func (s clickIDStrategy) Resolve(ctx context.Context, order *OrderContext) (Outcome, error) {
	raw := strings.TrimSpace(s.clickID(order))
	if raw == "" {
		return NoMatch(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return NoMatch(), nil
	}
	click, err := s.clicks.FindByID(ctx, id)
	if err != nil {
		return NoMatch(), err
	}
	// a click only ever attributes orders of the shop it was recorded for
	if click == nil || click.Shop != order.Shop {
		return NoMatch(), nil
	}
	affiliate, err := s.affiliates.FindByID(ctx, click.AffiliateID)
	if err != nil {
		return NoMatch(), err
	}
	if !affiliate.IsActive() {
		return NoMatch(), nil
	}
	if !clickInWindow(click.CreatedAt, order.CreatedAt, windowDays(affiliate.Offer, s.defaultWindowDays)) {
		return NoMatch(), nil
	}
	return Outcome{
		Matched:     true,
		AffiliateID: affiliate.ID,
		ClickID:     &click.ID,
		Type:        enums.AttributionTypeLink,
	}, nil
}

// refNumberStrategy resolves an explicit ref=<affiliate_number> referrer
// parameter. The number itself identifies the affiliate; the most recent click
// by that affiliate inside the window is attached when one exists.
type refNumberStrategy struct {
	clicks            clickFinder
	affiliates        affiliateFinder
	defaultWindowDays int
}

func (refNumberStrategy) Name() string { return "ref_number" }

func (s refNumberStrategy) Resolve(ctx context.Context, order *OrderContext) (Outcome, error) {
	number, err := strconv.ParseInt(order.ReferrerParam(refParamKey), 10, 64)
	if err != nil || number <= 0 {
		return NoMatch(), nil
	}
	affiliate, err := s.affiliates.FindByNumber(ctx, order.Shop, number)
	if err != nil {
		return NoMatch(), err
	}
	if !affiliate.IsActive() {
		return NoMatch(), nil
	}

	outcome := Outcome{
		Matched:     true,
		AffiliateID: affiliate.ID,
		Type:        enums.AttributionTypeURLParam,
	}
	days := windowDays(affiliate.Offer, s.defaultWindowDays)
	from := order.CreatedAt.Add(-time.Duration(days) * 24 * time.Hour)
	click, err := s.clicks.FindLatestByAffiliateBetween(ctx, affiliate.ID, from, order.CreatedAt)
	if err != nil {
		return NoMatch(), err
	}
	if click != nil {
		outcome.ClickID = &click.ID
	}
	return outcome, nil
}

// fingerprintStrategy is the last resolving fallback: among shop clicks with
// the order's hashed IP and user agent inside the lookback horizon, the most
// recent click whose own affiliate's window still covers the click-to-order
// gap wins.
type fingerprintStrategy struct {
	clicks            clickFinder
	affiliates        affiliateFinder
	lookbackDays      int
	defaultWindowDays int
}

func (fingerprintStrategy) Name() string { return "fingerprint" }

func (s fingerprintStrategy) Resolve(ctx context.Context, order *OrderContext) (Outcome, error) {
	if order.IPHash == "" || order.UserAgentHash == "" {
		return NoMatch(), nil
	}
	since := order.CreatedAt.Add(-time.Duration(s.lookbackDays) * 24 * time.Hour)
	candidates, err := s.clicks.FindByFingerprint(ctx, order.Shop, order.IPHash, order.UserAgentHash, since)
	if err != nil {
		return NoMatch(), err
	}
	for i := range candidates {
		click := &candidates[i]
		if click.CreatedAt.After(order.CreatedAt) {
			continue
		}
		affiliate, err := s.affiliates.FindByID(ctx, click.AffiliateID)
		if err != nil {
			return NoMatch(), err
		}
		if !affiliate.IsActive() {
			continue
		}
		if !clickInWindow(click.CreatedAt, order.CreatedAt, windowDays(affiliate.Offer, s.defaultWindowDays)) {
			continue
		}
		return Outcome{
			Matched:     true,
			AffiliateID: affiliate.ID,
			ClickID:     &click.ID,
			Type:        enums.AttributionTypeFingerprint,
		}, nil
	}
	return NoMatch(), nil
}

// emailAuditStrategy detects an affiliate ordering under their own account
// email. It never attributes; the match is logged so a reviewer can inspect
// it for self-referral.
type emailAuditStrategy struct {
	affiliates affiliateFinder
	logg       *logger.Logger
}

func (emailAuditStrategy) Name() string { return "email_audit" }

func (s emailAuditStrategy) Resolve(ctx context.Context, order *OrderContext) (Outcome, error) {
	email := strings.TrimSpace(order.CustomerEmail)
	if email == "" {
		return NoMatch(), nil
	}
	affiliate, err := s.affiliates.FindByEmail(ctx, order.Shop, email)
	if err != nil {
		return NoMatch(), err
	}
	if affiliate != nil && s.logg != nil {
		lctx := s.logg.WithAffiliateID(ctx, affiliate.ID.String())
		lctx = s.logg.WithOrderID(lctx, order.ShopifyOrderID)
		s.logg.Warn(lctx, "order email matches affiliate account email, not attributing")
	}
	return NoMatch(), nil
}
