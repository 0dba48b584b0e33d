package postbacks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/refermint-backend/pkg/config"
	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	"github.com/angelmondragon/refermint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/refermint-backend/pkg/errors"
	"github.com/angelmondragon/refermint-backend/pkg/types"
)

type stubLogStore struct {
	created       []models.PostbackLog
	updated       []models.PostbackLog
	retryable     []models.PostbackLog
	retryableErr  error
	exhaustedWith int
}

func (s *stubLogStore) Create(_ context.Context, log *models.PostbackLog) error {
	s.created = append(s.created, *log)
	return nil
}

func (s *stubLogStore) Update(_ context.Context, log *models.PostbackLog) error {
	s.updated = append(s.updated, *log)
	return nil
}

func (s *stubLogStore) FindRetryable(_ context.Context, _ int, _ time.Duration, _ time.Time, _ int) ([]models.PostbackLog, error) {
	return s.retryable, s.retryableErr
}

func (s *stubLogStore) MarkExhausted(_ context.Context, maxAttempts int) (int64, error) {
	s.exhaustedWith = maxAttempts
	return 0, nil
}

type stubDoer struct {
	requests []*http.Request
	status   int
	body     string
	err      error
}

func (s *stubDoer) Do(req *http.Request) (*http.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &http.Response{
		StatusCode: s.status,
		Body:       io.NopCloser(bytes.NewBufferString(s.body)),
	}, nil
}

func newDispatcher(t *testing.T, store *stubLogStore, doer *stubDoer) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:           store,
		HTTP:           doer,
		Config:         config.PostbacksConfig{Timeout: time.Second, MaxAttempts: 3, RetryGap: time.Hour},
		OwnStoreDomain: "shop.example.com",
		Now:            func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc
}

func dispatchFixtures() (*models.Commission, *models.Affiliate, *models.OrderAttribution) {
	postbackURL := "https://network.example/conv?txid={txid}"
	commission := &models.Commission{
		ID:             uuid.New(),
		ShopifyOrderID: 5001,
		Amount:         decimal.RequireFromString("20.00"),
		Currency:       "USD",
		Status:         enums.CommissionStatusPending,
	}
	affiliate := &models.Affiliate{
		ID:          uuid.New(),
		PostbackURL: &postbackURL,
		PostbackParams: types.Params{
			"txid":   "{transaction_id}",
			"amount": "{commission_amount}",
		},
	}
	attribution := &models.OrderAttribution{
		ShopifyOrderNumber: "1042",
		OrderTotal:         decimal.RequireFromString("109.95"),
		LandingURLParams:   types.Params{"transaction_id": "t-77"},
	}
	return commission, affiliate, attribution
}

func TestFireCommissionLogsThenDelivers(t *testing.T) {
	store := &stubLogStore{}
	doer := &stubDoer{status: http.StatusOK, body: "OK"}
	svc := newDispatcher(t, store, doer)

	commission, affiliate, attribution := dispatchFixtures()
	require.NoError(t, svc.FireCommission(context.Background(), commission, affiliate, attribution))

	require.Len(t, store.created, 1)
	created := store.created[0]
	assert.Equal(t, enums.PostbackStatusPending, created.Status)
	assert.Equal(t, "https://network.example/conv?txid=t-77&amount=20.00", created.URL)
	assert.Equal(t, affiliate.ID, created.AffiliateID)
	assert.Equal(t, commission.ID, created.CommissionID)
	assert.Equal(t, "t-77", created.Params.Get("txid"))

	require.Len(t, doer.requests, 1)
	assert.Equal(t, created.URL, doer.requests[0].URL.String())

	require.Len(t, store.updated, 1)
	updated := store.updated[0]
	assert.Equal(t, enums.PostbackStatusSuccess, updated.Status)
	require.NotNil(t, updated.ResponseCode)
	assert.Equal(t, http.StatusOK, *updated.ResponseCode)
	require.NotNil(t, updated.ResponseBody)
	assert.Equal(t, "OK", *updated.ResponseBody)
	assert.Equal(t, 1, updated.Attempts)
	require.NotNil(t, updated.LastAttemptAt)
}

func TestFireCommissionNetworkFailureRecorded(t *testing.T) {
	store := &stubLogStore{}
	doer := &stubDoer{err: errors.New("connection refused")}
	svc := newDispatcher(t, store, doer)

	commission, affiliate, attribution := dispatchFixtures()
	require.NoError(t, svc.FireCommission(context.Background(), commission, affiliate, attribution))

	require.Len(t, store.updated, 1)
	updated := store.updated[0]
	assert.Equal(t, enums.PostbackStatusFailed, updated.Status)
	assert.Nil(t, updated.ResponseCode)
	require.NotNil(t, updated.ErrorMessage)
	assert.Contains(t, *updated.ErrorMessage, "connection refused")
}

func TestFireCommissionNon2xxIsFailure(t *testing.T) {
	store := &stubLogStore{}
	doer := &stubDoer{status: http.StatusBadGateway, body: "upstream down"}
	svc := newDispatcher(t, store, doer)

	commission, affiliate, attribution := dispatchFixtures()
	require.NoError(t, svc.FireCommission(context.Background(), commission, affiliate, attribution))

	require.Len(t, store.updated, 1)
	updated := store.updated[0]
	assert.Equal(t, enums.PostbackStatusFailed, updated.Status)
	require.NotNil(t, updated.ResponseCode)
	assert.Equal(t, http.StatusBadGateway, *updated.ResponseCode)
}

func TestFireCommissionRefusesOwnDomain(t *testing.T) {
	store := &stubLogStore{}
	doer := &stubDoer{status: http.StatusOK}
	svc := newDispatcher(t, store, doer)

	commission, affiliate, attribution := dispatchFixtures()
	ownURL := "https://shop.example.com/hooks/conv"
	affiliate.PostbackURL = &ownURL

	err := svc.FireCommission(context.Background(), commission, affiliate, attribution)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	assert.Empty(t, store.created)
	assert.Empty(t, doer.requests)
}

func TestFireCommissionSkipsAffiliateWithoutURL(t *testing.T) {
	store := &stubLogStore{}
	doer := &stubDoer{status: http.StatusOK}
	svc := newDispatcher(t, store, doer)

	commission, affiliate, attribution := dispatchFixtures()
	affiliate.PostbackURL = nil

	require.NoError(t, svc.FireCommission(context.Background(), commission, affiliate, attribution))
	assert.Empty(t, store.created)
	assert.Empty(t, doer.requests)
}

func TestRetrySweepRetriesAndClosesExhausted(t *testing.T) {
	store := &stubLogStore{
		retryable: []models.PostbackLog{
			{
				ID:       uuid.New(),
				URL:      "https://network.example/conv?txid=t-77",
				Status:   enums.PostbackStatusFailed,
				Attempts: 1,
			},
		},
	}
	doer := &stubDoer{status: http.StatusOK, body: "OK"}
	svc := newDispatcher(t, store, doer)

	retried, err := svc.RetrySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, retried)

	require.Len(t, doer.requests, 1)
	require.Len(t, store.updated, 1)
	assert.Equal(t, enums.PostbackStatusSuccess, store.updated[0].Status)
	assert.Equal(t, 2, store.updated[0].Attempts)
	assert.Equal(t, 3, store.exhaustedWith)
}

func TestRetrySweepSkipsOwnDomainEntries(t *testing.T) {
	store := &stubLogStore{
		retryable: []models.PostbackLog{
			{
				ID:       uuid.New(),
				URL:      "https://shop.example.com/hooks/conv",
				Status:   enums.PostbackStatusFailed,
				Attempts: 1,
			},
		},
	}
	doer := &stubDoer{status: http.StatusOK}
	svc := newDispatcher(t, store, doer)

	_, err := svc.RetrySweep(context.Background())
	require.Error(t, err)
	assert.Empty(t, doer.requests)
}

func TestRetrySweepSurfacesLoadError(t *testing.T) {
	store := &stubLogStore{retryableErr: errors.New("db down")}
	svc := newDispatcher(t, store, &stubDoer{})

	_, err := svc.RetrySweep(context.Background())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}
