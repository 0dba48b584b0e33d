package subscriptions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/refermint-backend/pkg/errors"
	"github.com/angelmondragon/refermint-backend/pkg/logger"
)

type subscriptionStore interface {
	Create(ctx context.Context, sub *models.SubscriptionAttribution) error
	FindByOriginalOrder(ctx context.Context, shop string, originalOrderID int64, sellingPlanID string) (*models.SubscriptionAttribution, error)
	FindLatestActive(ctx context.Context, affiliateID uuid.UUID, sellingPlanID string) (*models.SubscriptionAttribution, error)
	IncrementPaymentsTx(tx *gorm.DB, id uuid.UUID) error
}

// ServiceParams configure the subscription matcher.
type ServiceParams struct {
	Repo   subscriptionStore
	Logger *logger.Logger
}

// Service links renewal orders back to the subscription contract that was
// attributed on the initial order.
type Service struct {
	repo subscriptionStore
	logg *logger.Logger
}

// NewService builds the subscription matcher.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repo required")
	}
	return &Service{repo: params.Repo, logg: params.Logger}, nil
}

// RegisterInput records the subscription opened by an initial order.
type RegisterInput struct {
	Shop            string
	OriginalOrderID int64
	SellingPlanID   string
	AffiliateID     uuid.UUID
	IntervalMonths  int
	MaxPayments     *int
}

// RegisterInitial creates the subscription attribution for a new contract
// with no payments counted yet. Safe to call twice for the same order.
func (s *Service) RegisterInitial(ctx context.Context, input RegisterInput) (*models.SubscriptionAttribution, error) {
	if input.SellingPlanID == "" || input.AffiliateID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "selling plan and affiliate required")
	}
	interval := input.IntervalMonths
	if interval <= 0 {
		interval = 1
	}
	sub := &models.SubscriptionAttribution{
		ID:              uuid.New(),
		Shop:            input.Shop,
		OriginalOrderID: input.OriginalOrderID,
		SellingPlanID:   input.SellingPlanID,
		AffiliateID:     input.AffiliateID,
		IntervalMonths:  interval,
		MaxPayments:     input.MaxPayments,
		Active:          true,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register subscription")
	}
	return sub, nil
}

// MatchRenewal locates the subscription a renewal order belongs to. The
// original-order-id hint from the order metadata is tried first, then the most
// recent active contract for the resolved affiliate and selling plan. Returns
// nil when neither matches; a renewal with no match is never commissioned.
func (s *Service) MatchRenewal(ctx context.Context, shop, sellingPlanID string, originalOrderHint *int64, affiliateID *uuid.UUID) (*models.SubscriptionAttribution, error) {
	if sellingPlanID == "" {
		return nil, nil
	}

	if originalOrderHint != nil {
		sub, err := s.repo.FindByOriginalOrder(ctx, shop, *originalOrderHint, sellingPlanID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "match renewal by original order")
		}
		if sub != nil && sub.Active {
			return sub, nil
		}
	}

	if affiliateID != nil && *affiliateID != uuid.Nil {
		sub, err := s.repo.FindLatestActive(ctx, *affiliateID, sellingPlanID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "match renewal by affiliate")
		}
		if sub != nil {
			return sub, nil
		}
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "selling_plan_id", sellingPlanID), "renewal did not match a subscription")
	}
	return nil, nil
}

// CountPayment records one commissioned renewal inside the commission
// transaction so the counter and the commission land together.
func (s *Service) CountPayment(tx *gorm.DB, id uuid.UUID) error {
	return s.repo.IncrementPaymentsTx(tx, id)
}
