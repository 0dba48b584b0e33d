package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/refermint-backend/internal/attribution"
	"github.com/angelmondragon/refermint-backend/internal/commissions"
	"github.com/angelmondragon/refermint-backend/internal/fraud"
	"github.com/angelmondragon/refermint-backend/internal/subscriptions"
	"github.com/angelmondragon/refermint-backend/pkg/config"
	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	"github.com/angelmondragon/refermint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/refermint-backend/pkg/errors"
	"github.com/angelmondragon/refermint-backend/pkg/logger"
	"github.com/angelmondragon/refermint-backend/pkg/metrics"
)

// Outcome classifies what an order event did. Every outcome except a hard
// error is acknowledged to the platform; skips carry a reason for audit.
type Outcome string

const (
	OutcomeAttributed   Outcome = "attributed"
	OutcomeCommissioned Outcome = "commissioned"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeSkipped      Outcome = "skipped"
)

// Skip reasons reported on OutcomeSkipped results.
const (
	SkipMissingFields    = "missing_order_fields"
	SkipNotPaid          = "not_paid"
	SkipInternalTraffic  = "internal_traffic"
	SkipNoAttribution    = "no_attribution"
	SkipAffiliateMissing = "affiliate_missing"
	SkipAffiliateDormant = "affiliate_inactive"
	SkipMissingOffer     = "missing_offer"
	SkipRenewalUnmatched = "renewal_unmatched"
	SkipRebillIneligible = "rebill_ineligible"
)

// Result is what a fully processed order event produced.
type Result struct {
	Outcome    Outcome
	Reason     string
	Commission *models.Commission
}

type attributionResolver interface {
	Resolve(ctx context.Context, order *attribution.OrderContext) (*attribution.Result, error)
}

type subscriptionMatcher interface {
	RegisterInitial(ctx context.Context, input subscriptions.RegisterInput) (*models.SubscriptionAttribution, error)
	MatchRenewal(ctx context.Context, shop, sellingPlanID string, originalOrderHint *int64, affiliateID *uuid.UUID) (*models.SubscriptionAttribution, error)
}

type commissionCreator interface {
	CreateForOrder(ctx context.Context, input commissions.CreateInput) (*models.Commission, bool, error)
}

type affiliateLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Affiliate, error)
}

type fraudScorer interface {
	Score(ctx context.Context, input *fraud.Input) ([]models.FraudFlag, error)
}

type postbackNotifier interface {
	FireCommission(ctx context.Context, commission *models.Commission, affiliate *models.Affiliate, attribution *models.OrderAttribution) error
}

type eventGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

// ServiceParams configure the webhook ingest orchestrator.
type ServiceParams struct {
	Attribution   attributionResolver
	Subscriptions subscriptionMatcher
	Commissions   commissionCreator
	Affiliates    affiliateLoader
	Fraud         fraudScorer
	Postbacks     postbackNotifier
	Guard         eventGuard
	Metrics       *metrics.WebhookMetrics
	Logger        *logger.Logger
	Config        config.IngestConfig
}

// Service drives the order event state machine: attribution on create,
// commission on payment, with idempotency anchored in the database and a
// redis event guard as a cheap duplicate short-circuit.
type Service struct {
	attribution   attributionResolver
	subscriptions subscriptionMatcher
	commissions   commissionCreator
	affiliates    affiliateLoader
	fraud         fraudScorer
	postbacks     postbackNotifier
	guard         eventGuard
	metrics       *metrics.WebhookMetrics
	logg          *logger.Logger
	cfg           config.IngestConfig
}

// NewService builds the ingest orchestrator.
func NewService(params ServiceParams) (*Service, error) {
	if params.Attribution == nil || params.Commissions == nil || params.Affiliates == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "attribution, commissions and affiliates required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription matcher required")
	}
	return &Service{
		attribution:   params.Attribution,
		subscriptions: params.Subscriptions,
		commissions:   params.Commissions,
		affiliates:    params.Affiliates,
		fraud:         params.Fraud,
		postbacks:     params.Postbacks,
		guard:         params.Guard,
		metrics:       params.Metrics,
		logg:          params.Logger,
		cfg:           params.Config,
	}, nil
}

// HandleOrderEvent processes one verified order webhook. Deliveries are
// at-least-once and may arrive reordered, so every path is safe to repeat:
// attribution is an upsert and the commission insert is guarded by the
// per-order unique index.
func (s *Service) HandleOrderEvent(ctx context.Context, event *OrderEvent) (*Result, error) {
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order event required")
	}
	start := time.Now()
	result, err := s.handle(ctx, event)
	s.metrics.ObserveDuration(event.Topic.String(), time.Since(start))
	if err != nil {
		s.metrics.IncOutcome(event.Topic.String(), "error")
		return nil, err
	}
	outcome := string(result.Outcome)
	if result.Outcome == OutcomeSkipped && result.Reason != "" {
		outcome = result.Reason
	}
	s.metrics.IncOutcome(event.Topic.String(), outcome)
	return result, nil
}

func (s *Service) handle(ctx context.Context, event *OrderEvent) (*Result, error) {
	if len(event.MissingFields) > 0 {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithShop(ctx, event.Shop), "order payload missing required fields: "+strings.Join(event.MissingFields, ", "))
		}
		return &Result{Outcome: OutcomeSkipped, Reason: SkipMissingFields}, nil
	}
	if dup := s.seenBefore(ctx, event); dup {
		return &Result{Outcome: OutcomeDuplicate, Reason: "event id already processed"}, nil
	}

	attrResult, err := s.attribution.Resolve(ctx, s.orderContext(event))
	if err != nil {
		return nil, err
	}

	// the zero-total carve-out covers test/free orders on the paid-side
	// topics only; an unpaid zero-total create still just attributes
	payable := event.IsPaid() ||
		(s.cfg.AllowZeroTotal && event.Total.IsZero() && event.Topic != enums.TopicOrdersCreate)
	if !payable {
		if event.Topic == enums.TopicOrdersCreate {
			if attrResult.Attribution != nil {
				return &Result{Outcome: OutcomeAttributed}, nil
			}
			return s.skipFromAttribution(attrResult), nil
		}
		return &Result{Outcome: OutcomeSkipped, Reason: SkipNotPaid}, nil
	}

	if attrResult.Attribution == nil {
		return s.skipFromAttribution(attrResult), nil
	}
	return s.commission(ctx, event, attrResult.Attribution)
}

func (s *Service) skipFromAttribution(attrResult *attribution.Result) *Result {
	if attrResult.Outcome.Terminal {
		return &Result{Outcome: OutcomeSkipped, Reason: SkipInternalTraffic}
	}
	return &Result{Outcome: OutcomeSkipped, Reason: SkipNoAttribution}
}

func (s *Service) commission(ctx context.Context, event *OrderEvent, attr *models.OrderAttribution) (*Result, error) {
	affiliate, err := s.affiliates.FindByID(ctx, *attr.AffiliateID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load attributed affiliate")
	}
	if affiliate == nil {
		return &Result{Outcome: OutcomeSkipped, Reason: SkipAffiliateMissing}, nil
	}
	if !affiliate.IsActive() {
		return &Result{Outcome: OutcomeSkipped, Reason: SkipAffiliateDormant}, nil
	}
	if affiliate.Offer == nil {
		return &Result{Outcome: OutcomeSkipped, Reason: SkipMissingOffer}, nil
	}

	kind, sellingPlanID := subscriptions.Classify(s.subscriptionLines(event))
	input := commissions.CreateInput{
		Attribution: attr,
		Offer:       affiliate.Offer,
		Subtotal:    event.Subtotal,
		Currency:    event.Currency,
		PaidAt:      event.CreatedAt,
	}

	var matchedSub *models.SubscriptionAttribution
	if kind == subscriptions.KindRenewal {
		matchedSub, err = s.subscriptions.MatchRenewal(ctx, event.Shop, sellingPlanID, event.OriginalOrderHint(), attr.AffiliateID)
		if err != nil {
			return nil, err
		}
		if matchedSub == nil {
			return &Result{Outcome: OutcomeSkipped, Reason: SkipRenewalUnmatched}, nil
		}
		if !commissions.RebillEligible(affiliate.Offer, matchedSub) {
			return &Result{Outcome: OutcomeSkipped, Reason: SkipRebillIneligible}, nil
		}
		input.IsRebill = true
		input.Subscription = matchedSub
	}

	commission, created, err := s.commissions.CreateForOrder(ctx, input)
	if err != nil {
		return nil, err
	}
	if !created {
		return &Result{Outcome: OutcomeDuplicate, Reason: "order already commissioned", Commission: commission}, nil
	}

	if kind == subscriptions.KindInitial {
		_, err = s.subscriptions.RegisterInitial(ctx, subscriptions.RegisterInput{
			Shop:            event.Shop,
			OriginalOrderID: event.OrderID,
			SellingPlanID:   sellingPlanID,
			AffiliateID:     affiliate.ID,
			MaxPayments:     affiliate.Offer.SubscriptionMaxPayments,
		})
		if err != nil && s.logg != nil {
			s.logg.Error(ctx, "register subscription attribution", err)
		}
	}

	s.afterCommission(ctx, event, commission, affiliate, attr)
	return &Result{Outcome: OutcomeCommissioned, Commission: commission}, nil
}

// afterCommission runs the advisory tail of the pipeline. Fraud scoring and
// postback dispatch never fail the webhook; their errors are logged only.
func (s *Service) afterCommission(ctx context.Context, event *OrderEvent, commission *models.Commission, affiliate *models.Affiliate, attr *models.OrderAttribution) {
	if s.fraud != nil {
		_, err := s.fraud.Score(ctx, &fraud.Input{
			Commission:  commission,
			Affiliate:   affiliate,
			OrderEmail:  event.CustomerEmail,
			OrderIPHash: event.IPHash,
			OccurredAt:  event.CreatedAt,
		})
		if err != nil && s.logg != nil {
			s.logg.Error(ctx, "fraud scoring", err)
		}
	}
	if s.postbacks != nil {
		if err := s.postbacks.FireCommission(ctx, commission, affiliate, attr); err != nil && s.logg != nil {
			s.logg.Error(ctx, "postback dispatch", err)
		}
	}
}

func (s *Service) seenBefore(ctx context.Context, event *OrderEvent) bool {
	if s.guard == nil || event.EventID == "" {
		return false
	}
	ttl := s.cfg.EventGuardTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	key := s.guard.IdempotencyKey("webhook", fmt.Sprintf("%s:%s", event.Topic, event.EventID))
	fresh, err := s.guard.SetNX(ctx, key, "1", ttl)
	if err != nil {
		// redis is only a short-circuit; the database uniqueness still holds
		if s.logg != nil {
			s.logg.Warn(ctx, "webhook event guard unavailable")
		}
		return false
	}
	return !fresh
}

func (s *Service) orderContext(event *OrderEvent) *attribution.OrderContext {
	return &attribution.OrderContext{
		Shop:           event.Shop,
		ShopifyOrderID: event.OrderID,
		OrderNumber:    event.OrderNumber,
		CreatedAt:      event.CreatedAt,
		CustomerEmail:  event.CustomerEmail,
		CustomerName:   event.CustomerName,
		Total:          event.Total,
		Currency:       event.Currency,
		ReferringSite:  event.ReferringSite,
		DiscountCodes:  event.DiscountCodes,
		CarriedClickID: event.CarriedClickID(),
		IPHash:         event.IPHash,
		UserAgentHash:  event.UserAgentHash,
	}
}

func (s *Service) subscriptionLines(event *OrderEvent) []subscriptions.LineItem {
	lines := make([]subscriptions.LineItem, 0, len(event.LineItems))
	for _, item := range event.LineItems {
		lines = append(lines, subscriptions.LineItem{
			SellingPlanID: item.SellingPlanID,
			Properties:    item.Properties,
		})
	}
	return lines
}
