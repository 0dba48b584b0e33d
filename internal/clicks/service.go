package clicks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/refermint-backend/pkg/errors"
	"github.com/angelmondragon/refermint-backend/pkg/logger"
	"github.com/angelmondragon/refermint-backend/pkg/security"
	"github.com/angelmondragon/refermint-backend/pkg/types"
)

const defaultDedupWindow = 5 * time.Minute

type clickStore interface {
	Create(ctx context.Context, click *models.Click) error
	FindRecentByFingerprint(ctx context.Context, affiliateID uuid.UUID, ipHash, uaHash string, since time.Time) (*models.Click, error)
	UpdateParams(ctx context.Context, id uuid.UUID, params types.Params) error
}

// ServiceParams configure the click service.
type ServiceParams struct {
	Repo        clickStore
	Logger      *logger.Logger
	DedupWindow time.Duration
	Now         func() time.Time
}

// Service records inbound referral clicks with dedup and bot screening.
type Service struct {
	repo        clickStore
	logg        *logger.Logger
	dedupWindow time.Duration
	now         func() time.Time
}

// NewService builds a click service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "click repo required")
	}
	window := params.DedupWindow
	if window <= 0 {
		window = defaultDedupWindow
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:        params.Repo,
		logg:        params.Logger,
		dedupWindow: window,
		now:         now,
	}, nil
}

// RecordInput carries one inbound click.
type RecordInput struct {
	Shop        string
	AffiliateID uuid.UUID
	LinkID      *uuid.UUID
	LandingURL  string
	IPAddress   string
	UserAgent   string
	URLParams   types.Params
}

// RecordOutput reports the persisted (or reused) click.
type RecordOutput struct {
	ClickID      uuid.UUID
	Deduplicated bool
}

// Record persists a click, or merges it into a recent duplicate from the same
// affiliate/IP/user-agent. On merge the newest URL parameter values win per
// key and previously captured keys are retained.
func (s *Service) Record(ctx context.Context, input RecordInput) (*RecordOutput, error) {
	if input.AffiliateID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "affiliate id required")
	}
	if IsBot(input.UserAgent) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bot detected")
	}

	ipHash := security.HashIdentifier(input.IPAddress)
	uaHash := security.HashIdentifier(input.UserAgent)
	now := s.now()

	existing, err := s.repo.FindRecentByFingerprint(ctx, input.AffiliateID, ipHash, uaHash, now.Add(-s.dedupWindow))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup duplicate click")
	}
	if existing != nil {
		if len(input.URLParams) > 0 {
			merged := existing.URLParams.Merge(input.URLParams)
			if err := s.repo.UpdateParams(ctx, existing.ID, merged); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge click params")
			}
		}
		if s.logg != nil {
			s.logg.Info(s.logg.WithField(ctx, "click_id", existing.ID.String()), "click deduplicated")
		}
		return &RecordOutput{ClickID: existing.ID, Deduplicated: true}, nil
	}

	click := &models.Click{
		ID:            uuid.New(),
		Shop:          input.Shop,
		AffiliateID:   input.AffiliateID,
		LinkID:        input.LinkID,
		LandingURL:    input.LandingURL,
		IPHash:        ipHash,
		UserAgentHash: uaHash,
		URLParams:     input.URLParams,
		CreatedAt:     now,
	}
	if err := s.repo.Create(ctx, click); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist click")
	}
	return &RecordOutput{ClickID: click.ID}, nil
}
