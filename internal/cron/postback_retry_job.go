package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/refermint-backend/pkg/logger"
)

type postbackSweeper interface {
	RetrySweep(ctx context.Context) (int, error)
}

// PostbackRetryJobParams configure the postback retry job.
type PostbackRetryJobParams struct {
	Logger    *logger.Logger
	Postbacks postbackSweeper
}

// NewPostbackRetryJob builds the job that re-attempts failed affiliate
// postbacks and closes out exhausted ones.
func NewPostbackRetryJob(params PostbackRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Postbacks == nil {
		return nil, fmt.Errorf("postback service required")
	}
	return &postbackRetryJob{
		logg:      params.Logger,
		postbacks: params.Postbacks,
	}, nil
}

type postbackRetryJob struct {
	logg      *logger.Logger
	postbacks postbackSweeper
}

func (j *postbackRetryJob) Name() string { return "postback-retry" }

func (j *postbackRetryJob) Run(ctx context.Context) error {
	retried, err := j.postbacks.RetrySweep(ctx)
	if err != nil {
		return fmt.Errorf("postback retry sweep: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "retried", retried)
	j.logg.Info(logCtx, "postback retry sweep complete")
	return nil
}
