package attribution

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/refermint-backend/pkg/errors"
	"github.com/angelmondragon/refermint-backend/pkg/logger"
	"github.com/angelmondragon/refermint-backend/pkg/types"
)

const (
	defaultWindowDays   = 90
	defaultLookbackDays = 90
)

type attributionStore interface {
	FindByOrderID(ctx context.Context, shop string, shopifyOrderID int64) (*models.OrderAttribution, error)
	UpsertTx(tx *gorm.DB, attribution *models.OrderAttribution) error
}

// commissionReverser moves an order's open commissions to reversed. Paid
// commissions are never touched.
type commissionReverser interface {
	ReverseOpenByOrderTx(tx *gorm.DB, shop string, shopifyOrderID int64) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams configure the attribution resolver.
type ServiceParams struct {
	Repo        attributionStore
	Clicks      clickFinder
	Affiliates  affiliateFinder
	Commissions commissionReverser
	Tx          txRunner
	Logger      *logger.Logger

	DefaultWindowDays       int
	FingerprintLookbackDays int
}

// Service resolves orders to affiliates through the strategy chain and
// maintains the one-attribution-per-order invariant.
type Service struct {
	repo        attributionStore
	clicks      clickFinder
	commissions commissionReverser
	tx          txRunner
	logg        *logger.Logger
	chain       []Strategy
}

// NewService builds the resolver with its strategies in priority order.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil || params.Clicks == nil || params.Affiliates == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "attribution repo, clicks and affiliates required")
	}
	if params.Commissions == nil || params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "commission reverser and tx runner required")
	}
	window := params.DefaultWindowDays
	if window <= 0 {
		window = defaultWindowDays
	}
	lookback := params.FingerprintLookbackDays
	if lookback <= 0 {
		lookback = defaultLookbackDays
	}

	chain := []Strategy{
		internalTrafficStrategy{},
		couponStrategy{affiliates: params.Affiliates},
		clickIDStrategy{
			name:              "referrer_click",
			clicks:            params.Clicks,
			affiliates:        params.Affiliates,
			defaultWindowDays: window,
			clickID:           func(o *OrderContext) string { return o.ReferrerParam(clickIDParamKey) },
		},
		refNumberStrategy{
			clicks:            params.Clicks,
			affiliates:        params.Affiliates,
			defaultWindowDays: window,
		},
		clickIDStrategy{
			name:              "carried_click",
			clicks:            params.Clicks,
			affiliates:        params.Affiliates,
			defaultWindowDays: window,
			clickID:           func(o *OrderContext) string { return o.CarriedClickID },
		},
		fingerprintStrategy{
			clicks:            params.Clicks,
			affiliates:        params.Affiliates,
			lookbackDays:      lookback,
			defaultWindowDays: window,
		},
		emailAuditStrategy{affiliates: params.Affiliates, logg: params.Logger},
	}

	return &Service{
		repo:        params.Repo,
		clicks:      params.Clicks,
		commissions: params.Commissions,
		tx:          params.Tx,
		logg:        params.Logger,
		chain:       chain,
	}, nil
}

// Result reports how an order was resolved. Attribution is nil when no
// affiliate was credited.
type Result struct {
	Outcome     Outcome
	Method      string
	Attribution *models.OrderAttribution
	// Reversed counts commissions moved to reversed by a re-attribution.
	Reversed int64
}

// Resolve runs the strategy chain for the order and persists the winning
// attribution. Re-attributing to a different affiliate reverses the order's
// open commissions in the same transaction that rewrites the attribution row.
func (s *Service) Resolve(ctx context.Context, order *OrderContext) (*Result, error) {
	if order == nil || order.ShopifyOrderID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order context required")
	}

	var outcome Outcome
	var method string
	for _, strategy := range s.chain {
		out, err := strategy.Resolve(ctx, order)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attribution strategy "+strategy.Name())
		}
		if out.Terminal || out.Matched {
			outcome = out
			method = strategy.Name()
			break
		}
	}

	if outcome.Terminal {
		if s.logg != nil {
			lctx := s.logg.WithOrderID(ctx, order.ShopifyOrderID)
			s.logg.Info(lctx, "attribution skipped: "+outcome.Reason)
		}
		return &Result{Outcome: outcome, Method: method}, nil
	}
	if !outcome.Matched {
		return &Result{Outcome: outcome}, nil
	}

	attribution, err := s.buildAttribution(ctx, order, outcome)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByOrderID(ctx, order.Shop, order.ShopifyOrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing attribution")
	}

	result := &Result{Outcome: outcome, Method: method, Attribution: attribution}
	reattributed := existing != nil && existing.AffiliateID != nil && *existing.AffiliateID != outcome.AffiliateID
	if existing != nil {
		attribution.ID = existing.ID
		attribution.CreatedAt = existing.CreatedAt
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if reattributed {
			reversed, err := s.commissions.ReverseOpenByOrderTx(tx, order.Shop, order.ShopifyOrderID)
			if err != nil {
				return err
			}
			result.Reversed = reversed
		}
		return s.repo.UpsertTx(tx, attribution)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist attribution")
	}

	if s.logg != nil {
		lctx := s.logg.WithOrderID(ctx, order.ShopifyOrderID)
		lctx = s.logg.WithAffiliateID(lctx, outcome.AffiliateID.String())
		lctx = s.logg.WithField(lctx, "method", method)
		if reattributed {
			s.logg.Warn(lctx, "order re-attributed, open commissions reversed")
		} else {
			s.logg.Info(lctx, "order attributed")
		}
	}
	return result, nil
}

func (s *Service) buildAttribution(ctx context.Context, order *OrderContext, outcome Outcome) (*models.OrderAttribution, error) {
	var params types.Params
	if outcome.ClickID != nil {
		click, err := s.clicks.FindByID(ctx, *outcome.ClickID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load attributed click")
		}
		if click != nil {
			params = click.URLParams
		}
	}

	attribution := &models.OrderAttribution{
		ID:                 uuid.New(),
		Shop:               order.Shop,
		ShopifyOrderID:     order.ShopifyOrderID,
		ShopifyOrderNumber: order.OrderNumber,
		AffiliateID:        &outcome.AffiliateID,
		ClickID:            outcome.ClickID,
		AttributionType:    outcome.Type,
		OrderCurrency:      order.Currency,
		OrderTotal:         order.Total,
		LandingURLParams:   params,
	}
	if order.CustomerEmail != "" {
		email := order.CustomerEmail
		attribution.CustomerEmail = &email
	}
	if order.CustomerName != "" {
		name := order.CustomerName
		attribution.CustomerName = &name
	}
	return attribution, nil
}
