package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/refermint-backend/api/responses"
	"github.com/angelmondragon/refermint-backend/api/validators"
	"github.com/angelmondragon/refermint-backend/internal/clicks"
	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/refermint-backend/pkg/errors"
	"github.com/angelmondragon/refermint-backend/pkg/logger"
	"github.com/angelmondragon/refermint-backend/pkg/types"
)

const (
	maxLandingURLLen = 2048
	maxParamLen      = 512
	maxParamCount    = 30

	refInternal = "internal"
	refDirect   = "direct"
)

type clickRecorder interface {
	Record(ctx context.Context, input clicks.RecordInput) (*clicks.RecordOutput, error)
}

type affiliateByNumber interface {
	FindByNumber(ctx context.Context, shop string, number int64) (*models.Affiliate, error)
}

// TrackClickRequest is the payload posted by the storefront tracking snippet.
type TrackClickRequest struct {
	Shop       string       `json:"shop" validate:"required,max=255"`
	Ref        string       `json:"ref" validate:"required,max=32"`
	LandingURL string       `json:"landing_url" validate:"required,url,max=2048"`
	LinkID     *uuid.UUID   `json:"link_id,omitempty"`
	Params     types.Params `json:"params,omitempty"`
}

// TrackClickResponse reports the stored (or reused) click and the affiliate
// it was credited to.
type TrackClickResponse struct {
	ClickID         uuid.UUID `json:"clickId"`
	AffiliateID     uuid.UUID `json:"affiliateId"`
	AffiliateNumber int64     `json:"affiliateNumber"`
	Deduplicated    bool      `json:"deduplicated"`
}

// TrackClick records a referral click. The ref value is the affiliate's public
// number from the landing URL.
func TrackClick(clickSvc clickRecorder, affiliates affiliateByNumber, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req TrackClickRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ref := strings.ToLower(strings.TrimSpace(req.Ref))
		if ref == refInternal || ref == refDirect {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "internal traffic"))
			return
		}
		number, err := strconv.ParseInt(ref, 10, 64)
		if err != nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "ref is not an affiliate number"))
			return
		}

		shop := validators.SanitizeString(req.Shop, 255)
		if logg != nil {
			ctx = logg.WithShop(ctx, shop)
		}

		affiliate, err := affiliates.FindByNumber(ctx, shop, number)
		if err != nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up affiliate"))
			return
		}
		if affiliate == nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeNotFound, "unknown affiliate number"))
			return
		}
		if !affiliate.IsActive() {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeNotFound, "affiliate is not active"))
			return
		}

		output, err := clickSvc.Record(ctx, clicks.RecordInput{
			Shop:        shop,
			AffiliateID: affiliate.ID,
			LinkID:      req.LinkID,
			LandingURL:  validators.SanitizeString(req.LandingURL, maxLandingURLLen),
			IPAddress:   clientIP(r),
			UserAgent:   r.UserAgent(),
			URLParams:   sanitizeParams(req.Params),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, TrackClickResponse{
			ClickID:         output.ClickID,
			AffiliateID:     affiliate.ID,
			AffiliateNumber: affiliate.Number,
			Deduplicated:    output.Deduplicated,
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the socket
// peer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		return host[:idx]
	}
	return host
}

func sanitizeParams(params types.Params) types.Params {
	if len(params) == 0 {
		return nil
	}
	cleaned := make(types.Params, len(params))
	for key, value := range params {
		if len(cleaned) >= maxParamCount {
			break
		}
		key = validators.SanitizeString(key, 64)
		value = validators.SanitizeString(value, maxParamLen)
		if key == "" || value == "" {
			continue
		}
		cleaned[key] = value
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}
