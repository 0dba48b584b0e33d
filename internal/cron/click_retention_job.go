package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/refermint-backend/pkg/logger"
)

const defaultClickRetentionDays = 180

type clickPurger interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ClickRetentionJobParams configure the click retention job.
type ClickRetentionJobParams struct {
	Logger        *logger.Logger
	Clicks        clickPurger
	RetentionDays int
}

// NewClickRetentionJob builds the job that drops clicks older than the
// retention horizon. Clicks past the longest attribution window carry no
// signal and only grow the fingerprint scan.
func NewClickRetentionJob(params ClickRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Clicks == nil {
		return nil, fmt.Errorf("click repository required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = defaultClickRetentionDays
	}
	return &clickRetentionJob{
		logg:      params.Logger,
		clicks:    params.Clicks,
		retention: retention,
		now:       time.Now,
	}, nil
}

type clickRetentionJob struct {
	logg      *logger.Logger
	clicks    clickPurger
	retention int
	now       func() time.Time
}

func (j *clickRetentionJob) Name() string { return "click-retention" }

func (j *clickRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	deleted, err := j.clicks.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("click retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "click retention cleanup complete")
	return nil
}
