package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/refermint-backend/pkg/logger"
)

type eligibilityPromoter interface {
	PromoteEligible(ctx context.Context) (int64, error)
}

// CommissionEligibilityJobParams configure the eligibility promotion job.
type CommissionEligibilityJobParams struct {
	Logger      *logger.Logger
	Commissions eligibilityPromoter
}

// NewCommissionEligibilityJob builds the job that moves pending commissions
// past their payout hold into the eligible state.
func NewCommissionEligibilityJob(params CommissionEligibilityJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Commissions == nil {
		return nil, fmt.Errorf("commission service required")
	}
	return &commissionEligibilityJob{
		logg:        params.Logger,
		commissions: params.Commissions,
	}, nil
}

type commissionEligibilityJob struct {
	logg        *logger.Logger
	commissions eligibilityPromoter
}

func (j *commissionEligibilityJob) Name() string { return "commission-eligibility" }

func (j *commissionEligibilityJob) Run(ctx context.Context) error {
	promoted, err := j.commissions.PromoteEligible(ctx)
	if err != nil {
		return fmt.Errorf("promote eligible commissions: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "promoted", promoted)
	j.logg.Info(logCtx, "commission eligibility promotion complete")
	return nil
}
