package fraud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	"github.com/angelmondragon/refermint-backend/pkg/enums"
)

const (
	selfReferralEmailScore = 50
	selfReferralIPScore    = 30
	// selfReferralIPClickMin is how many of the affiliate's own clicks must
	// share the order's IP hash in the prior week before the overlap counts.
	selfReferralIPClickMin = 5
	selfReferralLookback   = 7 * 24 * time.Hour

	clickBurstLookback = 24 * time.Hour

	maxScore = 100
)

type clickCounter interface {
	CountByAffiliateSince(ctx context.Context, affiliateID uuid.UUID, since time.Time) (int64, error)
	CountByAffiliateIPSince(ctx context.Context, affiliateID uuid.UUID, ipHash string, since time.Time) (int64, error)
}

type commissionCounter interface {
	CountByAffiliate(ctx context.Context, affiliateID uuid.UUID) (total, reversed int64, err error)
}

// Input is the evidence a heuristic evaluates for one new commission.
type Input struct {
	Commission  *models.Commission
	Affiliate   *models.Affiliate
	OrderEmail  string
	OrderIPHash string
	OccurredAt  time.Time
}

// Finding is a heuristic's verdict; nil means the check did not fire.
type Finding struct {
	FlagType enums.FraudFlagType
	Score    int
	Reason   string
}

// Check is one fraud heuristic. Each check applies its own threshold and
// returns a finding only when crossed.
type Check interface {
	Name() string
	Evaluate(ctx context.Context, input *Input) (*Finding, error)
}

// selfReferralCheck detects affiliates commissioning their own purchases,
// by account email match and by overlap between the order's IP and the
// affiliate's own recent clicks.
type selfReferralCheck struct {
	clicks    clickCounter
	threshold int
}

func (selfReferralCheck) Name() string { return "self_referral" }

func (c selfReferralCheck) Evaluate(ctx context.Context, input *Input) (*Finding, error) {
	score := 0
	var reasons []string

	if input.OrderEmail != "" && strings.EqualFold(input.OrderEmail, input.Affiliate.Email) {
		score += selfReferralEmailScore
		reasons = append(reasons, "order email matches affiliate account email")
	}

	if input.OrderIPHash != "" {
		since := input.OccurredAt.Add(-selfReferralLookback)
		count, err := c.clicks.CountByAffiliateIPSince(ctx, input.Affiliate.ID, input.OrderIPHash, since)
		if err != nil {
			return nil, err
		}
		if count > selfReferralIPClickMin {
			score += selfReferralIPScore
			reasons = append(reasons, fmt.Sprintf("order IP matches %d affiliate clicks in the last 7 days", count))
		}
	}

	if score < c.threshold {
		return nil, nil
	}
	return &Finding{
		FlagType: enums.FraudFlagTypeSelfReferral,
		Score:    score,
		Reason:   strings.Join(reasons, "; "),
	}, nil
}

// excessiveClicksCheck flags click bursts. The score grows linearly with the
// click count past the threshold and is capped at 100.
type excessiveClicksCheck struct {
	clicks    clickCounter
	threshold int
}

func (excessiveClicksCheck) Name() string { return "excessive_clicks" }

func (c excessiveClicksCheck) Evaluate(ctx context.Context, input *Input) (*Finding, error) {
	since := input.OccurredAt.Add(-clickBurstLookback)
	count, err := c.clicks.CountByAffiliateSince(ctx, input.Affiliate.ID, since)
	if err != nil {
		return nil, err
	}
	if count <= int64(c.threshold) {
		return nil, nil
	}
	score := int(count) - c.threshold
	if score > maxScore {
		score = maxScore
	}
	return &Finding{
		FlagType: enums.FraudFlagTypeExcessiveClicks,
		Score:    score,
		Reason:   fmt.Sprintf("%d clicks in the last 24 hours (threshold %d)", count, c.threshold),
	}, nil
}

// refundRateCheck flags affiliates whose reversed share of all commissions
// exceeds the configured percentage. The score scales with the excess over
// the threshold, reaching 100 when every commission is reversed.
type refundRateCheck struct {
	commissions      commissionCounter
	thresholdPercent int
}

func (refundRateCheck) Name() string { return "high_refund_rate" }

func (c refundRateCheck) Evaluate(ctx context.Context, input *Input) (*Finding, error) {
	total, reversed, err := c.commissions.CountByAffiliate(ctx, input.Affiliate.ID)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}
	ratePercent := float64(reversed) / float64(total) * 100
	threshold := float64(c.thresholdPercent)
	if ratePercent <= threshold {
		return nil, nil
	}
	score := int((ratePercent - threshold) / (100 - threshold) * maxScore)
	if score > maxScore {
		score = maxScore
	}
	if score < 1 {
		score = 1
	}
	return &Finding{
		FlagType: enums.FraudFlagTypeHighRefundRate,
		Score:    score,
		Reason:   fmt.Sprintf("%.0f%% of %d commissions reversed (threshold %d%%)", ratePercent, total, c.thresholdPercent),
	}, nil
}
