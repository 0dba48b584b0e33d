package commissions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	"github.com/angelmondragon/refermint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/refermint-backend/pkg/errors"
)

type stubCommissionStore struct {
	commissions []*models.Commission
	createErr   error
	promoted    int64
	// openReads, when set, scripts successive FindOpenByOrder results.
	openReads []*models.Commission
}

func (s *stubCommissionStore) CreateTx(_ *gorm.DB, commission *models.Commission) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.commissions = append(s.commissions, commission)
	return nil
}

func (s *stubCommissionStore) FindByID(_ context.Context, id uuid.UUID) (*models.Commission, error) {
	for _, c := range s.commissions {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (s *stubCommissionStore) FindOpenByOrder(_ context.Context, shop string, shopifyOrderID int64) (*models.Commission, error) {
	if len(s.openReads) > 0 {
		next := s.openReads[0]
		s.openReads = s.openReads[1:]
		return next, nil
	}
	for _, c := range s.commissions {
		if c.Shop == shop && c.ShopifyOrderID == shopifyOrderID && c.Status != enums.CommissionStatusReversed {
			return c, nil
		}
	}
	return nil, nil
}

func (s *stubCommissionStore) UpdateStatus(_ context.Context, id uuid.UUID, status enums.CommissionStatus) error {
	for _, c := range s.commissions {
		if c.ID == id {
			c.Status = status
		}
	}
	return nil
}

func (s *stubCommissionStore) PromoteEligible(_ context.Context, _ time.Time) (int64, error) {
	return s.promoted, nil
}

type stubCounter struct {
	counted []uuid.UUID
}

func (s *stubCounter) CountPayment(_ *gorm.DB, id uuid.UUID) error {
	s.counted = append(s.counted, id)
	return nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newCommissionService(t *testing.T, store *stubCommissionStore, counter *stubCounter) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Repo: store, Subscriptions: counter, Tx: passthroughTx{}})
	require.NoError(t, err)
	return svc
}

func attributedOrder(orderID int64) *models.OrderAttribution {
	affiliateID := uuid.New()
	return &models.OrderAttribution{
		ID:             uuid.New(),
		Shop:           "demo.myshopify.com",
		ShopifyOrderID: orderID,
		AffiliateID:    &affiliateID,
	}
}

func TestCreateForOrderIsIdempotent(t *testing.T) {
	store := &stubCommissionStore{}
	svc := newCommissionService(t, store, nil)

	input := CreateInput{
		Attribution: attributedOrder(5001),
		Offer:       flatOffer(20),
		Subtotal:    decimal.RequireFromString("100.00"),
		Currency:    "USD",
		PaidAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	first, created, err := svc.CreateForOrder(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "20.00", first.Amount.StringFixed(2))
	assert.Equal(t, enums.CommissionStatusPending, first.Status)
	require.NotNil(t, first.EligibleDate)
	assert.Equal(t, input.PaidAt.Add(30*24*time.Hour), *first.EligibleDate)

	for i := 0; i < 3; i++ {
		again, created, err := svc.CreateForOrder(context.Background(), input)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
	}
	assert.Len(t, store.commissions, 1)
}

func TestCreateForOrderUniqueRace(t *testing.T) {
	store := &stubCommissionStore{
		createErr: errors.New(`duplicate key value violates unique constraint "idx_commissions_order_open"`),
	}
	winner := &models.Commission{
		ID:             uuid.New(),
		Shop:           "demo.myshopify.com",
		ShopifyOrderID: 5001,
		Status:         enums.CommissionStatusPending,
	}
	svc := newCommissionService(t, store, nil)

	input := CreateInput{
		Attribution: attributedOrder(5001),
		Offer:       flatOffer(20),
		Subtotal:    decimal.RequireFromString("100.00"),
		Currency:    "USD",
	}

	// pre-check sees nothing, the insert hits the unique index, and the
	// re-read resolves to the concurrent winner
	store.openReads = []*models.Commission{nil, winner}
	got, created, err := svc.CreateForOrder(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, got.ID)

	// a non-unique-violation insert error still surfaces
	store.createErr = errors.New("connection reset")
	store.openReads = []*models.Commission{nil}
	_, _, err = svc.CreateForOrder(context.Background(), input)
	require.Error(t, err)
}

func TestCreateForOrderCountsRebillPayment(t *testing.T) {
	store := &stubCommissionStore{}
	counter := &stubCounter{}
	svc := newCommissionService(t, store, counter)

	offer := flatOffer(5)
	offer.RebillPolicy = enums.RebillPolicyCreditAll
	sub := &models.SubscriptionAttribution{ID: uuid.New(), Active: true}

	_, created, err := svc.CreateForOrder(context.Background(), CreateInput{
		Attribution:  attributedOrder(6001),
		Offer:        offer,
		Subtotal:     decimal.RequireFromString("50.00"),
		Currency:     "USD",
		IsRebill:     true,
		Subscription: sub,
	})
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, counter.counted, 1)
	assert.Equal(t, sub.ID, counter.counted[0])
}

func TestCreateForOrderRequiresAttribution(t *testing.T) {
	svc := newCommissionService(t, &stubCommissionStore{}, nil)

	_, _, err := svc.CreateForOrder(context.Background(), CreateInput{Offer: flatOffer(20)})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestRevertPaidToEligible(t *testing.T) {
	store := &stubCommissionStore{}
	svc := newCommissionService(t, store, nil)

	paid := &models.Commission{ID: uuid.New(), Status: enums.CommissionStatusPaid}
	pending := &models.Commission{ID: uuid.New(), Status: enums.CommissionStatusPending}
	store.commissions = []*models.Commission{paid, pending}

	require.NoError(t, svc.RevertPaidToEligible(context.Background(), paid.ID))
	assert.Equal(t, enums.CommissionStatusEligible, paid.Status)

	err := svc.RevertPaidToEligible(context.Background(), pending.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	err = svc.RevertPaidToEligible(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}
