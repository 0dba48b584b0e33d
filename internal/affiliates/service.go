package affiliates

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	"github.com/angelmondragon/refermint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/refermint-backend/pkg/errors"
	"github.com/angelmondragon/refermint-backend/pkg/logger"
	"github.com/angelmondragon/refermint-backend/pkg/types"
)

// firstAffiliateNumber is where a shop's referral number sequence starts.
// Numbers are short and human facing, so they begin well above zero.
const firstAffiliateNumber = 1000

type affiliateStore interface {
	CreateTx(tx *gorm.DB, affiliate *models.Affiliate) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Affiliate, error)
	FindOfferByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	MaxNumberForUpdate(tx *gorm.DB, shop string) (int64, error)
	CreateOfferTx(tx *gorm.DB, offer *models.Offer) error
	MaxOfferNumberForUpdate(tx *gorm.DB, shop string) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams configure the affiliate service.
type ServiceParams struct {
	Repo   affiliateStore
	Tx     txRunner
	Logger *logger.Logger
}

// Service manages affiliate enrollment.
type Service struct {
	repo affiliateStore
	tx   txRunner
	logg *logger.Logger
}

// NewService builds an affiliate service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "affiliate repo required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	return &Service{repo: params.Repo, tx: params.Tx, logg: params.Logger}, nil
}

// CreateInput enrolls a new affiliate under an offer.
type CreateInput struct {
	Shop           string
	Name           string
	Email          string
	OfferID        uuid.UUID
	CouponCode     *string
	PostbackURL    *string
	PostbackParams types.Params
}

// Create enrolls an affiliate, assigning the next referral number for the
// shop inside a single transaction.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Affiliate, error) {
	shop := strings.TrimSpace(input.Shop)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if shop == "" || email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop and email are required")
	}

	offer, err := s.repo.FindOfferByID(ctx, input.OfferID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
	}
	if offer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
	}
	if offer.Shop != shop {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer belongs to a different shop")
	}

	affiliate := &models.Affiliate{
		ID:             uuid.New(),
		Shop:           shop,
		Name:           strings.TrimSpace(input.Name),
		Email:          email,
		Status:         enums.AffiliateStatusActive,
		OfferID:        offer.ID,
		CouponCode:     input.CouponCode,
		PostbackURL:    input.PostbackURL,
		PostbackParams: input.PostbackParams,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		max, err := s.repo.MaxNumberForUpdate(tx, shop)
		if err != nil {
			return err
		}
		affiliate.Number = max + 1
		if affiliate.Number < firstAffiliateNumber {
			affiliate.Number = firstAffiliateNumber
		}
		return s.repo.CreateTx(tx, affiliate)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enroll affiliate")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithAffiliateID(ctx, affiliate.ID.String()), "affiliate enrolled")
	}
	return affiliate, nil
}

// CreateOfferInput defines a commission rule set for a shop.
type CreateOfferInput struct {
	Shop            string
	Name            string
	CommissionType  enums.CommissionType
	CommissionValue decimal.Decimal

	RebillPolicy            enums.RebillPolicy
	RebillCommissionType    *enums.CommissionType
	RebillCommissionValue   *decimal.Decimal
	SubscriptionMaxPayments *int

	AttributionWindowDays int
	PayoutTermDays        int
}

// CreateOffer registers an offer, assigning the next offer number for the
// shop inside a single transaction.
func (s *Service) CreateOffer(ctx context.Context, input CreateOfferInput) (*models.Offer, error) {
	shop := strings.TrimSpace(input.Shop)
	name := strings.TrimSpace(input.Name)
	if shop == "" || name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop and name are required")
	}
	if !input.CommissionType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown commission type")
	}
	if input.CommissionValue.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission value must not be negative")
	}
	policy := input.RebillPolicy
	if policy == "" {
		policy = enums.RebillPolicyNo
	}
	if !policy.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown rebill policy")
	}
	if input.RebillCommissionType != nil && !input.RebillCommissionType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown rebill commission type")
	}

	offer := &models.Offer{
		ID:                      uuid.New(),
		Shop:                    shop,
		Name:                    name,
		CommissionType:          input.CommissionType,
		CommissionValue:         input.CommissionValue,
		RebillPolicy:            policy,
		RebillCommissionType:    input.RebillCommissionType,
		RebillCommissionValue:   input.RebillCommissionValue,
		SubscriptionMaxPayments: input.SubscriptionMaxPayments,
		AttributionWindowDays:   input.AttributionWindowDays,
		PayoutTermDays:          input.PayoutTermDays,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		max, err := s.repo.MaxOfferNumberForUpdate(tx, shop)
		if err != nil {
			return err
		}
		offer.Number = max + 1
		return s.repo.CreateOfferTx(tx, offer)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register offer")
	}
	return offer, nil
}

// Get loads an affiliate with its offer attached.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Affiliate, error) {
	affiliate, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load affiliate")
	}
	if affiliate == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "affiliate not found")
	}
	return affiliate, nil
}
