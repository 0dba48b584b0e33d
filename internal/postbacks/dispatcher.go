package postbacks

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/refermint-backend/pkg/config"
	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	"github.com/angelmondragon/refermint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/refermint-backend/pkg/errors"
	"github.com/angelmondragon/refermint-backend/pkg/logger"
	"github.com/angelmondragon/refermint-backend/pkg/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	// responseBodyLimit bounds what gets stored on the audit log.
	responseBodyLimit = 512

	retryBatchSize = 100
)

type logStore interface {
	Create(ctx context.Context, log *models.PostbackLog) error
	Update(ctx context.Context, log *models.PostbackLog) error
	FindRetryable(ctx context.Context, maxAttempts int, retryGap time.Duration, now time.Time, limit int) ([]models.PostbackLog, error)
	MarkExhausted(ctx context.Context, maxAttempts int) (int64, error)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ServiceParams configure the postback dispatcher.
type ServiceParams struct {
	Repo    logStore
	HTTP    httpDoer
	Config  config.PostbacksConfig
	Metrics *metrics.PostbackMetrics
	Logger  *logger.Logger
	// OwnStoreDomain is the merchant's storefront; dispatching to it is a
	// misconfiguration and is refused.
	OwnStoreDomain string
	Now            func() time.Time
}

// Service fires outbound affiliate postbacks and runs the out-of-band retry
// sweep. Every attempt is logged before the network call resolves so the
// audit trail survives delivery failures.
type Service struct {
	repo      logStore
	client    httpDoer
	cfg       config.PostbacksConfig
	metrics   *metrics.PostbackMetrics
	logg      *logger.Logger
	ownDomain string
	now       func() time.Time
}

// NewService builds the dispatcher.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "postback log repo required")
	}
	timeout := params.Config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := params.HTTP
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      params.Repo,
		client:    client,
		cfg:       params.Config,
		metrics:   params.Metrics,
		logg:      params.Logger,
		ownDomain: strings.ToLower(params.OwnStoreDomain),
		now:       now,
	}, nil
}

// FireCommission dispatches the affiliate's postback for a new commission.
// Affiliates without a configured postback URL are skipped silently. Delivery
// failure is not an error here; the retry sweep picks the log entry up later.
func (s *Service) FireCommission(ctx context.Context, commission *models.Commission, affiliate *models.Affiliate, attribution *models.OrderAttribution) error {
	if affiliate == nil || affiliate.PostbackURL == nil || *affiliate.PostbackURL == "" {
		return nil
	}

	event := &Event{Commission: commission, Attribution: attribution}
	mapping := MappingFromParams(affiliate.PostbackParams)
	target, resolved := BuildURL(*affiliate.PostbackURL, mapping, event)

	if err := s.checkTarget(target); err != nil {
		return err
	}

	log := &models.PostbackLog{
		ID:           uuid.New(),
		AffiliateID:  affiliate.ID,
		CommissionID: commission.ID,
		URL:          target,
		Params:       resolved,
		Status:       enums.PostbackStatusPending,
	}
	if err := s.repo.Create(ctx, log); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write postback log")
	}

	s.attempt(ctx, log)
	return nil
}

// checkTarget refuses dispatch to the merchant's own storefront.
func (s *Service) checkTarget(target string) error {
	parsed, err := url.Parse(target)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse postback url")
	}
	host := strings.ToLower(parsed.Hostname())
	if s.ownDomain != "" && host == s.ownDomain {
		return pkgerrors.New(pkgerrors.CodeValidation, "postback url points at the store's own domain")
	}
	return nil
}

// attempt performs one delivery and records the outcome on the log row.
func (s *Service) attempt(ctx context.Context, log *models.PostbackLog) {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	now := s.now().UTC()
	log.Attempts++
	log.LastAttemptAt = &now

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, log.URL, nil)
	if err != nil {
		s.finish(ctx, log, enums.PostbackStatusFailed, nil, "", err)
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.finish(ctx, log, enums.PostbackStatusFailed, nil, "", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	status := enums.PostbackStatusSuccess
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status = enums.PostbackStatusFailed
	}
	s.finish(ctx, log, status, &resp.StatusCode, string(body), nil)
}

func (s *Service) finish(ctx context.Context, log *models.PostbackLog, status enums.PostbackStatus, code *int, body string, callErr error) {
	log.Status = status
	log.ResponseCode = code
	if body != "" {
		log.ResponseBody = &body
	}
	if callErr != nil {
		msg := callErr.Error()
		log.ErrorMessage = &msg
	} else {
		log.ErrorMessage = nil
	}

	s.metrics.IncAttempt(status.String())
	if err := s.repo.Update(ctx, log); err != nil && s.logg != nil {
		s.logg.Error(ctx, "update postback log", err)
	}
	if s.logg != nil {
		lctx := s.logg.WithAffiliateID(ctx, log.AffiliateID.String())
		lctx = s.logg.WithFields(lctx, map[string]any{
			"postback_log_id": log.ID.String(),
			"status":          status.String(),
			"attempts":        log.Attempts,
		})
		if status == enums.PostbackStatusSuccess {
			s.logg.Info(lctx, "postback delivered")
		} else {
			s.logg.Warn(lctx, "postback delivery failed")
		}
	}
}

// RetrySweep re-attempts failed deliveries below the attempt ceiling with at
// least the configured gap since the last try, then closes out entries that
// have exhausted their attempts. Returns how many deliveries were retried.
func (s *Service) RetrySweep(ctx context.Context) (int, error) {
	maxAttempts := s.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	retryGap := s.cfg.RetryGap
	if retryGap <= 0 {
		retryGap = time.Hour
	}

	retryable, err := s.repo.FindRetryable(ctx, maxAttempts, retryGap, s.now().UTC(), retryBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load retryable postbacks")
	}

	var errs error
	for i := range retryable {
		log := &retryable[i]
		if err := s.checkTarget(log.URL); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		s.attempt(ctx, log)
	}

	if _, err := s.repo.MarkExhausted(ctx, maxAttempts); err != nil {
		errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close exhausted postbacks"))
	}
	return len(retryable), errs
}
