package commissions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/refermint-backend/pkg/db"
	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	"github.com/angelmondragon/refermint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/refermint-backend/pkg/errors"
	"github.com/angelmondragon/refermint-backend/pkg/logger"
)

type commissionStore interface {
	CreateTx(tx *gorm.DB, commission *models.Commission) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	FindOpenByOrder(ctx context.Context, shop string, shopifyOrderID int64) (*models.Commission, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.CommissionStatus) error
	PromoteEligible(ctx context.Context, now time.Time) (int64, error)
}

type paymentCounter interface {
	CountPayment(tx *gorm.DB, id uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams configure the commission service.
type ServiceParams struct {
	Repo          commissionStore
	Subscriptions paymentCounter
	Tx            txRunner
	Logger        *logger.Logger
	Now           func() time.Time
}

// Service creates commissions from attributed paid orders and manages their
// lifecycle.
type Service struct {
	repo          commissionStore
	subscriptions paymentCounter
	tx            txRunner
	logg          *logger.Logger
	now           func() time.Time
}

// NewService builds a commission service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil || params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "commission repo and tx runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:          params.Repo,
		subscriptions: params.Subscriptions,
		tx:            params.Tx,
		logg:          params.Logger,
		now:           now,
	}, nil
}

// CreateInput carries everything needed to commission one paid order.
type CreateInput struct {
	Attribution *models.OrderAttribution
	Offer       *models.Offer
	Subtotal    decimal.Decimal
	Currency    string
	IsRebill    bool
	// Subscription, when set with IsRebill, has its payment counter advanced
	// in the same transaction as the commission insert.
	Subscription *models.SubscriptionAttribution
	PaidAt       time.Time
}

// CreateForOrder computes and persists the commission for an attributed paid
// order. Returns (existing, false, nil) when the order already has a
// non-reversed commission; the unique index closes the race between
// concurrent deliveries of the same order event.
func (s *Service) CreateForOrder(ctx context.Context, input CreateInput) (*models.Commission, bool, error) {
	attr := input.Attribution
	if attr == nil || attr.AffiliateID == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "attributed order required")
	}
	if input.Offer == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "offer required")
	}

	existing, err := s.repo.FindOpenByOrder(ctx, attr.Shop, attr.ShopifyOrderID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing commission")
	}
	if existing != nil {
		return existing, false, nil
	}

	amount, snapshot, err := Compute(input.Offer, input.Subtotal, input.IsRebill)
	if err != nil {
		return nil, false, err
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal rule snapshot")
	}

	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now().UTC()
	}
	eligibleDate := paidAt.Add(time.Duration(input.Offer.PayoutTermDays) * 24 * time.Hour)

	commission := &models.Commission{
		ID:                 uuid.New(),
		Shop:               attr.Shop,
		AffiliateID:        *attr.AffiliateID,
		OrderAttributionID: attr.ID,
		ShopifyOrderID:     attr.ShopifyOrderID,
		Amount:             amount,
		Currency:           input.Currency,
		Status:             enums.CommissionStatusPending,
		EligibleDate:       &eligibleDate,
		RuleSnapshot:       snapshotJSON,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, commission); err != nil {
			return err
		}
		if input.IsRebill && input.Subscription != nil && s.subscriptions != nil {
			return s.subscriptions.CountPayment(tx, input.Subscription.ID)
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, "idx_commissions_order_open") {
			winner, findErr := s.repo.FindOpenByOrder(ctx, attr.Shop, attr.ShopifyOrderID)
			if findErr == nil && winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist commission")
	}

	if s.logg != nil {
		lctx := s.logg.WithOrderID(ctx, attr.ShopifyOrderID)
		lctx = s.logg.WithAffiliateID(lctx, commission.AffiliateID.String())
		lctx = s.logg.WithField(lctx, "amount", amount.StringFixed(2))
		s.logg.Info(lctx, "commission created")
	}
	return commission, true, nil
}

// PromoteEligible moves pending commissions past their eligible date to
// eligible.
func (s *Service) PromoteEligible(ctx context.Context) (int64, error) {
	promoted, err := s.repo.PromoteEligible(ctx, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote eligible commissions")
	}
	return promoted, nil
}

// RevertPaidToEligible is an operator override for a commission paid in
// error. It is the only permitted move backwards in the lifecycle.
func (s *Service) RevertPaidToEligible(ctx context.Context, id uuid.UUID) error {
	commission, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission")
	}
	if commission == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "commission not found")
	}
	if commission.Status != enums.CommissionStatusPaid {
		return pkgerrors.New(pkgerrors.CodeValidation, "only paid commissions can be reverted")
	}
	if err := s.repo.UpdateStatus(ctx, id, enums.CommissionStatusEligible); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revert commission status")
	}
	return nil
}
