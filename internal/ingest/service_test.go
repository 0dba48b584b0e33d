package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/refermint-backend/internal/attribution"
	"github.com/angelmondragon/refermint-backend/internal/commissions"
	"github.com/angelmondragon/refermint-backend/internal/fraud"
	"github.com/angelmondragon/refermint-backend/internal/subscriptions"
	"github.com/angelmondragon/refermint-backend/pkg/config"
	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	"github.com/angelmondragon/refermint-backend/pkg/enums"
)

type stubResolver struct {
	result *attribution.Result
}

func (s *stubResolver) Resolve(_ context.Context, _ *attribution.OrderContext) (*attribution.Result, error) {
	return s.result, nil
}

type stubMatcher struct {
	registered []subscriptions.RegisterInput
	matched    *models.SubscriptionAttribution
}

func (s *stubMatcher) RegisterInitial(_ context.Context, input subscriptions.RegisterInput) (*models.SubscriptionAttribution, error) {
	s.registered = append(s.registered, input)
	return &models.SubscriptionAttribution{ID: uuid.New()}, nil
}

func (s *stubMatcher) MatchRenewal(_ context.Context, _, _ string, _ *int64, _ *uuid.UUID) (*models.SubscriptionAttribution, error) {
	return s.matched, nil
}

// stubCreator behaves like the real commission service: the first create for
// an order wins, repeats return the existing row.
type stubCreator struct {
	byOrder map[int64]*models.Commission
	inputs  []commissions.CreateInput
}

func (s *stubCreator) CreateForOrder(_ context.Context, input commissions.CreateInput) (*models.Commission, bool, error) {
	s.inputs = append(s.inputs, input)
	if existing, ok := s.byOrder[input.Attribution.ShopifyOrderID]; ok {
		return existing, false, nil
	}
	commission := &models.Commission{
		ID:             uuid.New(),
		Shop:           input.Attribution.Shop,
		AffiliateID:    *input.Attribution.AffiliateID,
		ShopifyOrderID: input.Attribution.ShopifyOrderID,
		Status:         enums.CommissionStatusPending,
	}
	s.byOrder[input.Attribution.ShopifyOrderID] = commission
	return commission, true, nil
}

type stubLoader struct {
	affiliate *models.Affiliate
}

func (s *stubLoader) FindByID(_ context.Context, _ uuid.UUID) (*models.Affiliate, error) {
	return s.affiliate, nil
}

type stubScorer struct {
	inputs []*fraud.Input
}

func (s *stubScorer) Score(_ context.Context, input *fraud.Input) ([]models.FraudFlag, error) {
	s.inputs = append(s.inputs, input)
	return nil, nil
}

type stubNotifier struct {
	fired int
}

func (s *stubNotifier) FireCommission(_ context.Context, _ *models.Commission, _ *models.Affiliate, _ *models.OrderAttribution) error {
	s.fired++
	return nil
}

type ingestFixture struct {
	resolver *stubResolver
	matcher  *stubMatcher
	creator  *stubCreator
	loader   *stubLoader
	scorer   *stubScorer
	notifier *stubNotifier
	svc      *Service
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()

	affiliateID := uuid.New()
	affiliate := &models.Affiliate{
		ID:     affiliateID,
		Shop:   "demo.myshopify.com",
		Email:  "partner@example.com",
		Status: enums.AffiliateStatusActive,
		Offer: &models.Offer{
			ID:              uuid.New(),
			CommissionType:  enums.CommissionTypeFlatRate,
			CommissionValue: decimal.NewFromInt(20),
			RebillPolicy:    enums.RebillPolicyCreditAll,
			PayoutTermDays:  30,
		},
	}

	f := &ingestFixture{
		resolver: &stubResolver{result: &attribution.Result{
			Outcome: attribution.Outcome{Matched: true, AffiliateID: affiliateID},
			Attribution: &models.OrderAttribution{
				ID:             uuid.New(),
				Shop:           "demo.myshopify.com",
				ShopifyOrderID: 5001,
				AffiliateID:    &affiliateID,
			},
		}},
		matcher:  &stubMatcher{},
		creator:  &stubCreator{byOrder: map[int64]*models.Commission{}},
		loader:   &stubLoader{affiliate: affiliate},
		scorer:   &stubScorer{},
		notifier: &stubNotifier{},
	}

	svc, err := NewService(ServiceParams{
		Attribution:   f.resolver,
		Subscriptions: f.matcher,
		Commissions:   f.creator,
		Affiliates:    f.loader,
		Fraud:         f.scorer,
		Postbacks:     f.notifier,
		Config:        config.IngestConfig{AllowZeroTotal: true},
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func paidOrderEvent(topic enums.WebhookTopic) *OrderEvent {
	return &OrderEvent{
		Shop:            "demo.myshopify.com",
		Topic:           topic,
		OrderID:         5001,
		OrderNumber:     "1042",
		FinancialStatus: "paid",
		Total:           decimal.RequireFromString("109.95"),
		Subtotal:        decimal.RequireFromString("99.95"),
		Currency:        "USD",
		CreatedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CustomerEmail:   "jane@example.com",
		NoteAttrs:       map[string]string{},
	}
}

func TestHandleOrderEventIdempotent(t *testing.T) {
	f := newIngestFixture(t)
	event := paidOrderEvent(enums.TopicOrdersUpdate)

	first, err := f.svc.HandleOrderEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommissioned, first.Outcome)
	require.NotNil(t, first.Commission)

	for i := 0; i < 4; i++ {
		again, err := f.svc.HandleOrderEvent(context.Background(), event)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, again.Outcome)
		assert.Equal(t, first.Commission.ID, again.Commission.ID)
	}
	assert.Len(t, f.creator.byOrder, 1, "N deliveries yield exactly one commission")
	assert.Equal(t, 1, f.notifier.fired, "postback fires only for the first delivery")
	assert.Len(t, f.scorer.inputs, 1)
}

func TestHandleOrderEventCreateUnpaidAttributesOnly(t *testing.T) {
	f := newIngestFixture(t)
	event := paidOrderEvent(enums.TopicOrdersCreate)
	event.FinancialStatus = "pending"
	event.Total = decimal.RequireFromString("109.95")

	result, err := f.svc.HandleOrderEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAttributed, result.Outcome)
	assert.Empty(t, f.creator.inputs)
}

func TestHandleOrderEventCreatePaidCommissionsImmediately(t *testing.T) {
	f := newIngestFixture(t)
	event := paidOrderEvent(enums.TopicOrdersCreate)

	result, err := f.svc.HandleOrderEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommissioned, result.Outcome)
}

func TestHandleOrderEventUnpaidUpdateIsNoop(t *testing.T) {
	f := newIngestFixture(t)
	event := paidOrderEvent(enums.TopicOrdersUpdate)
	event.FinancialStatus = "pending"

	result, err := f.svc.HandleOrderEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, SkipNotPaid, result.Reason)
}

func TestHandleOrderEventZeroTotalCommissions(t *testing.T) {
	f := newIngestFixture(t)
	event := paidOrderEvent(enums.TopicOrdersUpdate)
	event.FinancialStatus = "pending"
	event.Total = decimal.Zero
	event.Subtotal = decimal.Zero

	result, err := f.svc.HandleOrderEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommissioned, result.Outcome)
}

func TestHandleOrderEventZeroTotalCreateAttributesOnly(t *testing.T) {
	f := newIngestFixture(t)
	event := paidOrderEvent(enums.TopicOrdersCreate)
	event.FinancialStatus = "pending"
	event.Total = decimal.Zero
	event.Subtotal = decimal.Zero

	result, err := f.svc.HandleOrderEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAttributed, result.Outcome)
	assert.Empty(t, f.creator.inputs)
}

func TestHandleOrderEventMissingFieldsSkipped(t *testing.T) {
	f := newIngestFixture(t)
	event := paidOrderEvent(enums.TopicOrdersUpdate)
	event.MissingFields = []string{"currency"}

	result, err := f.svc.HandleOrderEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, SkipMissingFields, result.Reason)
	assert.Empty(t, f.creator.inputs)
}

func TestHandleOrderEventNoAttribution(t *testing.T) {
	f := newIngestFixture(t)
	f.resolver.result = &attribution.Result{Outcome: attribution.Outcome{}}

	result, err := f.svc.HandleOrderEvent(context.Background(), paidOrderEvent(enums.TopicOrdersUpdate))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, SkipNoAttribution, result.Reason)
}

func TestHandleOrderEventInternalTraffic(t *testing.T) {
	f := newIngestFixture(t)
	f.resolver.result = &attribution.Result{Outcome: attribution.Outcome{Terminal: true}}

	result, err := f.svc.HandleOrderEvent(context.Background(), paidOrderEvent(enums.TopicOrdersUpdate))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, SkipInternalTraffic, result.Reason)
}

func TestHandleOrderEventInactiveAffiliate(t *testing.T) {
	f := newIngestFixture(t)
	f.loader.affiliate.Status = enums.AffiliateStatusSuspended

	result, err := f.svc.HandleOrderEvent(context.Background(), paidOrderEvent(enums.TopicOrdersUpdate))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, SkipAffiliateDormant, result.Reason)
}

func renewalLine() OrderLineItem {
	return OrderLineItem{
		SellingPlanID: "907",
		Properties:    map[string]string{"_subscription_renewal": "true"},
	}
}

func TestHandleOrderEventRenewalUnmatched(t *testing.T) {
	f := newIngestFixture(t)
	event := paidOrderEvent(enums.TopicOrdersUpdate)
	event.LineItems = []OrderLineItem{renewalLine()}

	result, err := f.svc.HandleOrderEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, SkipRenewalUnmatched, result.Reason)
	assert.Empty(t, f.creator.inputs)
}

func TestHandleOrderEventRebillCeiling(t *testing.T) {
	f := newIngestFixture(t)
	max := 2
	f.loader.affiliate.Offer.RebillPolicy = enums.RebillPolicyCreditFirstOnly
	f.loader.affiliate.Offer.SubscriptionMaxPayments = &max

	sub := &models.SubscriptionAttribution{ID: uuid.New(), Active: true, MaxPayments: &max}
	f.matcher.matched = sub

	// renewals 1 and 2 commission, advancing the counter each time
	for i := 1; i <= 2; i++ {
		event := paidOrderEvent(enums.TopicOrdersUpdate)
		event.OrderID = int64(5000 + i)
		event.LineItems = []OrderLineItem{renewalLine()}
		f.resolver.result.Attribution.ShopifyOrderID = event.OrderID

		result, err := f.svc.HandleOrderEvent(context.Background(), event)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCommissioned, result.Outcome)
		sub.PaymentsMade++
	}

	// renewal 3 is past the ceiling
	event := paidOrderEvent(enums.TopicOrdersUpdate)
	event.OrderID = 5003
	event.LineItems = []OrderLineItem{renewalLine()}
	f.resolver.result.Attribution.ShopifyOrderID = event.OrderID

	result, err := f.svc.HandleOrderEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, SkipRebillIneligible, result.Reason)
	assert.Equal(t, 2, sub.PaymentsMade)
}

func TestHandleOrderEventInitialRegistersSubscription(t *testing.T) {
	f := newIngestFixture(t)
	event := paidOrderEvent(enums.TopicOrdersUpdate)
	event.LineItems = []OrderLineItem{{SellingPlanID: "907", Properties: map[string]string{}}}

	result, err := f.svc.HandleOrderEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommissioned, result.Outcome)
	require.Len(t, f.matcher.registered, 1)
	assert.Equal(t, "907", f.matcher.registered[0].SellingPlanID)
	assert.Equal(t, event.OrderID, f.matcher.registered[0].OriginalOrderID)
	assert.False(t, f.creator.inputs[0].IsRebill, "initial subscription order commissions as an initial payment")
}
