package fraud

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/refermint-backend/pkg/config"
	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/refermint-backend/pkg/errors"
	"github.com/angelmondragon/refermint-backend/pkg/logger"
)

type flagStore interface {
	Create(ctx context.Context, flag *models.FraudFlag) error
}

// ServiceParams configure the fraud scorer.
type ServiceParams struct {
	Repo        flagStore
	Clicks      clickCounter
	Commissions commissionCounter
	Config      config.FraudConfig
	Logger      *logger.Logger
	Now         func() time.Time
}

// Service runs the fraud heuristics against newly created commissions.
// Flags are advisory; they never change commission status.
type Service struct {
	repo   flagStore
	checks []Check
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the scorer with all three heuristics installed.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil || params.Clicks == nil || params.Commissions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "fraud repo, clicks and commissions required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	checks := []Check{
		selfReferralCheck{clicks: params.Clicks, threshold: params.Config.SelfReferralThreshold},
		excessiveClicksCheck{clicks: params.Clicks, threshold: params.Config.ClickBurstThreshold},
		refundRateCheck{commissions: params.Commissions, thresholdPercent: params.Config.RefundRatePercent},
	}
	return &Service{repo: params.Repo, checks: checks, logg: params.Logger, now: now}, nil
}

// Score evaluates every heuristic against the commission and persists a flag
// for each one that fires. A failing check does not stop the others; all
// check errors are joined and returned after the rest have run.
func (s *Service) Score(ctx context.Context, input *Input) ([]models.FraudFlag, error) {
	if input == nil || input.Commission == nil || input.Affiliate == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission and affiliate required")
	}
	if input.OccurredAt.IsZero() {
		input.OccurredAt = s.now().UTC()
	}

	var flags []models.FraudFlag
	var errs error
	for _, check := range s.checks {
		finding, err := check.Evaluate(ctx, input)
		if err != nil {
			errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fraud check "+check.Name()))
			continue
		}
		if finding == nil {
			continue
		}

		flag := models.FraudFlag{
			ID:           uuid.New(),
			CommissionID: input.Commission.ID,
			AffiliateID:  input.Affiliate.ID,
			FlagType:     finding.FlagType,
			Score:        finding.Score,
			Reason:       finding.Reason,
		}
		if err := s.repo.Create(ctx, &flag); err != nil {
			errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist fraud flag"))
			continue
		}
		flags = append(flags, flag)

		if s.logg != nil {
			lctx := s.logg.WithAffiliateID(ctx, input.Affiliate.ID.String())
			lctx = s.logg.WithFields(lctx, map[string]any{
				"flag_type": finding.FlagType.String(),
				"score":     finding.Score,
			})
			s.logg.Warn(lctx, "fraud flag raised")
		}
	}
	return flags, errs
}
