package attribution

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	"github.com/angelmondragon/refermint-backend/pkg/enums"
	"github.com/angelmondragon/refermint-backend/pkg/types"
)

type stubAffiliates struct {
	byID     map[uuid.UUID]*models.Affiliate
	byNumber map[int64]*models.Affiliate
	byCoupon map[string]*models.Affiliate
	byEmail  map[string]*models.Affiliate
}

func (s *stubAffiliates) FindByID(_ context.Context, id uuid.UUID) (*models.Affiliate, error) {
	return s.byID[id], nil
}

func (s *stubAffiliates) FindByNumber(_ context.Context, _ string, number int64) (*models.Affiliate, error) {
	return s.byNumber[number], nil
}

func (s *stubAffiliates) FindByCoupon(_ context.Context, _, code string) (*models.Affiliate, error) {
	return s.byCoupon[code], nil
}

func (s *stubAffiliates) FindByEmail(_ context.Context, _, email string) (*models.Affiliate, error) {
	return s.byEmail[email], nil
}

type stubClicks struct {
	byID        map[uuid.UUID]*models.Click
	byAffiliate map[uuid.UUID][]*models.Click
	fingerprint []models.Click
}

func (s *stubClicks) FindByID(_ context.Context, id uuid.UUID) (*models.Click, error) {
	return s.byID[id], nil
}

func (s *stubClicks) FindLatestByAffiliateBetween(_ context.Context, affiliateID uuid.UUID, from, to time.Time) (*models.Click, error) {
	var latest *models.Click
	for _, c := range s.byAffiliate[affiliateID] {
		if c.CreatedAt.Before(from) || c.CreatedAt.After(to) {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	return latest, nil
}

func (s *stubClicks) FindByFingerprint(_ context.Context, _, ipHash, uaHash string, since time.Time) ([]models.Click, error) {
	var out []models.Click
	for _, c := range s.fingerprint {
		if c.IPHash == ipHash && c.UserAgentHash == uaHash && !c.CreatedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

type stubAttrStore struct {
	existing *models.OrderAttribution
	upserted *models.OrderAttribution
}

func (s *stubAttrStore) FindByOrderID(_ context.Context, _ string, _ int64) (*models.OrderAttribution, error) {
	return s.existing, nil
}

func (s *stubAttrStore) UpsertTx(_ *gorm.DB, attribution *models.OrderAttribution) error {
	s.upserted = attribution
	return nil
}

type stubReverser struct {
	calls    int
	reversed int64
}

func (s *stubReverser) ReverseOpenByOrderTx(_ *gorm.DB, _ string, _ int64) (int64, error) {
	s.calls++
	return s.reversed, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fixture struct {
	affiliates *stubAffiliates
	clicks     *stubClicks
	store      *stubAttrStore
	reverser   *stubReverser
	svc        *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		affiliates: &stubAffiliates{
			byID:     map[uuid.UUID]*models.Affiliate{},
			byNumber: map[int64]*models.Affiliate{},
			byCoupon: map[string]*models.Affiliate{},
			byEmail:  map[string]*models.Affiliate{},
		},
		clicks: &stubClicks{
			byID:        map[uuid.UUID]*models.Click{},
			byAffiliate: map[uuid.UUID][]*models.Click{},
		},
		store:    &stubAttrStore{},
		reverser: &stubReverser{},
	}

	svc, err := NewService(ServiceParams{
		Repo:        f.store,
		Clicks:      f.clicks,
		Affiliates:  f.affiliates,
		Commissions: f.reverser,
		Tx:          passthroughTx{},
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) addAffiliate(number int64, windowDays int) *models.Affiliate {
	affiliate := &models.Affiliate{
		ID:     uuid.New(),
		Shop:   "demo.myshopify.com",
		Number: number,
		Email:  "partner@example.com",
		Status: enums.AffiliateStatusActive,
		Offer: &models.Offer{
			ID:                    uuid.New(),
			AttributionWindowDays: windowDays,
		},
	}
	f.affiliates.byID[affiliate.ID] = affiliate
	f.affiliates.byNumber[number] = affiliate
	return affiliate
}

func (f *fixture) addClick(affiliate *models.Affiliate, at time.Time) *models.Click {
	click := &models.Click{
		ID:          uuid.New(),
		Shop:        affiliate.Shop,
		AffiliateID: affiliate.ID,
		CreatedAt:   at,
		URLParams:   types.Params{"transaction_id": "t-1"},
	}
	f.clicks.byID[click.ID] = click
	f.clicks.byAffiliate[affiliate.ID] = append(f.clicks.byAffiliate[affiliate.ID], click)
	return click
}

func baseOrder(at time.Time) *OrderContext {
	return &OrderContext{
		Shop:           "demo.myshopify.com",
		ShopifyOrderID: 5001,
		OrderNumber:    "1042",
		CreatedAt:      at,
		Total:          decimal.RequireFromString("100.00"),
		Currency:       "USD",
	}
}

func TestResolveInternalTrafficWinsOverEverything(t *testing.T) {
	f := newFixture(t)
	affiliate := f.addAffiliate(1001, 90)
	coupon := "SAVE15"
	affiliate.CouponCode = &coupon
	f.affiliates.byCoupon[coupon] = affiliate
	click := f.addClick(affiliate, time.Now().Add(-time.Hour))

	order := baseOrder(time.Now())
	order.ReferringSite = "https://demo.myshopify.com/?ref=internal&click_id=" + click.ID.String()
	order.DiscountCodes = []string{coupon}

	result, err := f.svc.Resolve(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, result.Outcome.Terminal)
	assert.Nil(t, result.Attribution)
	assert.Nil(t, f.store.upserted)
}

func TestResolveOrganicSearchWithoutClickID(t *testing.T) {
	f := newFixture(t)

	order := baseOrder(time.Now())
	order.ReferringSite = "https://www.google.com/search?q=widgets"

	result, err := f.svc.Resolve(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, result.Outcome.Terminal)

	// a click id on the referrer defeats the organic short-circuit
	affiliate := f.addAffiliate(1001, 90)
	click := f.addClick(affiliate, time.Now().Add(-time.Hour))
	order = baseOrder(time.Now())
	order.ReferringSite = "https://www.google.com/?click_id=" + click.ID.String()

	result, err = f.svc.Resolve(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, result.Outcome.Matched)
	assert.Equal(t, enums.AttributionTypeLink, result.Outcome.Type)
}

func TestResolveCouponBeatsClick(t *testing.T) {
	f := newFixture(t)
	couponAffiliate := f.addAffiliate(1001, 90)
	clickAffiliate := f.addAffiliate(1002, 90)
	coupon := "SAVE15"
	f.affiliates.byCoupon[coupon] = couponAffiliate
	click := f.addClick(clickAffiliate, time.Now().Add(-time.Hour))

	order := baseOrder(time.Now())
	order.DiscountCodes = []string{coupon}
	order.ReferringSite = "https://partner.example/?click_id=" + click.ID.String()

	result, err := f.svc.Resolve(context.Background(), order)
	require.NoError(t, err)
	require.True(t, result.Outcome.Matched)
	assert.Equal(t, couponAffiliate.ID, result.Outcome.AffiliateID)
	assert.Equal(t, enums.AttributionTypeCoupon, result.Outcome.Type)
	// coupon attribution is independent of click tracking
	assert.Nil(t, result.Outcome.ClickID)
}

func TestResolveWindowBoundary(t *testing.T) {
	f := newFixture(t)
	affiliate := f.addAffiliate(1001, 30)
	orderAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	onBoundary := f.addClick(affiliate, orderAt.Add(-30*24*time.Hour))
	order := baseOrder(orderAt)
	order.CarriedClickID = onBoundary.ID.String()

	result, err := f.svc.Resolve(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, result.Outcome.Matched, "click exactly window days before the order attributes")

	pastBoundary := f.addClick(affiliate, orderAt.Add(-30*24*time.Hour).Add(-time.Second))
	order = baseOrder(orderAt)
	order.CarriedClickID = pastBoundary.ID.String()

	result, err = f.svc.Resolve(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, result.Outcome.Matched, "click one second past the window does not attribute")
}

func TestResolveRefNumberPicksLatestClick(t *testing.T) {
	f := newFixture(t)
	affiliate := f.addAffiliate(1001, 90)
	orderAt := time.Now()
	f.addClick(affiliate, orderAt.Add(-48*time.Hour))
	latest := f.addClick(affiliate, orderAt.Add(-2*time.Hour))

	order := baseOrder(orderAt)
	order.ReferringSite = "https://partner.example/?ref=1001"

	result, err := f.svc.Resolve(context.Background(), order)
	require.NoError(t, err)
	require.True(t, result.Outcome.Matched)
	assert.Equal(t, affiliate.ID, result.Outcome.AffiliateID)
	assert.Equal(t, enums.AttributionTypeURLParam, result.Outcome.Type)
	require.NotNil(t, result.Outcome.ClickID)
	assert.Equal(t, latest.ID, *result.Outcome.ClickID)
}

func TestResolveFingerprintHonorsPerAffiliateWindow(t *testing.T) {
	f := newFixture(t)
	shortWindow := f.addAffiliate(1001, 7)
	longWindow := f.addAffiliate(1002, 90)
	orderAt := time.Now()

	newer := models.Click{
		ID: uuid.New(), Shop: "demo.myshopify.com", AffiliateID: shortWindow.ID,
		IPHash: "ip", UserAgentHash: "ua", CreatedAt: orderAt.Add(-10 * 24 * time.Hour),
	}
	older := models.Click{
		ID: uuid.New(), Shop: "demo.myshopify.com", AffiliateID: longWindow.ID,
		IPHash: "ip", UserAgentHash: "ua", CreatedAt: orderAt.Add(-20 * 24 * time.Hour),
	}
	f.clicks.fingerprint = []models.Click{newer, older}

	order := baseOrder(orderAt)
	order.IPHash = "ip"
	order.UserAgentHash = "ua"

	result, err := f.svc.Resolve(context.Background(), order)
	require.NoError(t, err)
	require.True(t, result.Outcome.Matched)
	// the newest click is outside its own affiliate's 7-day window, so the
	// older click with the wider window wins
	assert.Equal(t, longWindow.ID, result.Outcome.AffiliateID)
	assert.Equal(t, enums.AttributionTypeFingerprint, result.Outcome.Type)
}

func TestResolveEmailNeverAttributes(t *testing.T) {
	f := newFixture(t)
	affiliate := f.addAffiliate(1001, 90)
	f.affiliates.byEmail["partner@example.com"] = affiliate

	order := baseOrder(time.Now())
	order.CustomerEmail = "partner@example.com"

	result, err := f.svc.Resolve(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, result.Outcome.Matched)
	assert.Nil(t, f.store.upserted)
}

func TestResolveReattributionReversesOpenCommissions(t *testing.T) {
	f := newFixture(t)
	oldAffiliate := f.addAffiliate(1001, 90)
	newAffiliate := f.addAffiliate(1002, 90)
	coupon := "NEW15"
	f.affiliates.byCoupon[coupon] = newAffiliate
	f.reverser.reversed = 1

	f.store.existing = &models.OrderAttribution{
		ID:             uuid.New(),
		Shop:           "demo.myshopify.com",
		ShopifyOrderID: 5001,
		AffiliateID:    &oldAffiliate.ID,
	}

	order := baseOrder(time.Now())
	order.DiscountCodes = []string{coupon}

	result, err := f.svc.Resolve(context.Background(), order)
	require.NoError(t, err)
	require.True(t, result.Outcome.Matched)
	assert.Equal(t, newAffiliate.ID, result.Outcome.AffiliateID)
	assert.Equal(t, 1, f.reverser.calls)
	assert.Equal(t, int64(1), result.Reversed)
	require.NotNil(t, f.store.upserted)
	assert.Equal(t, f.store.existing.ID, f.store.upserted.ID, "row identity survives re-attribution")
}

func TestResolveSameAffiliateDoesNotReverse(t *testing.T) {
	f := newFixture(t)
	affiliate := f.addAffiliate(1001, 90)
	coupon := "SAVE15"
	f.affiliates.byCoupon[coupon] = affiliate

	f.store.existing = &models.OrderAttribution{
		ID:          uuid.New(),
		AffiliateID: &affiliate.ID,
	}

	order := baseOrder(time.Now())
	order.DiscountCodes = []string{coupon}

	_, err := f.svc.Resolve(context.Background(), order)
	require.NoError(t, err)
	assert.Zero(t, f.reverser.calls)
}

func TestResolveClickFromAnotherShopDoesNotAttribute(t *testing.T) {
	f := newFixture(t)
	affiliate := f.addAffiliate(1001, 90)
	click := f.addClick(affiliate, time.Now().Add(-time.Hour))
	click.Shop = "other.myshopify.com"

	order := baseOrder(time.Now())
	order.CarriedClickID = click.ID.String()

	result, err := f.svc.Resolve(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, result.Outcome.Matched)
	assert.Nil(t, f.store.upserted)

	// the referrer click_id path enforces the same boundary
	order = baseOrder(time.Now())
	order.ReferringSite = "https://partner.example/?click_id=" + click.ID.String()

	result, err = f.svc.Resolve(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, result.Outcome.Matched)
}

func TestResolveSnapshotsClickParams(t *testing.T) {
	f := newFixture(t)
	affiliate := f.addAffiliate(1001, 90)
	click := f.addClick(affiliate, time.Now().Add(-time.Hour))

	order := baseOrder(time.Now())
	order.CarriedClickID = click.ID.String()

	result, err := f.svc.Resolve(context.Background(), order)
	require.NoError(t, err)
	require.NotNil(t, result.Attribution)
	assert.Equal(t, "t-1", result.Attribution.LandingURLParams.Get("transaction_id"))
}

func TestResolveInactiveAffiliateSkipped(t *testing.T) {
	f := newFixture(t)
	affiliate := f.addAffiliate(1001, 90)
	affiliate.Status = enums.AffiliateStatusSuspended
	click := f.addClick(affiliate, time.Now().Add(-time.Hour))

	order := baseOrder(time.Now())
	order.CarriedClickID = click.ID.String()

	result, err := f.svc.Resolve(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, result.Outcome.Matched)
}
