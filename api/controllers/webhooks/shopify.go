package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/refermint-backend/api/responses"
	"github.com/angelmondragon/refermint-backend/internal/ingest"
	"github.com/angelmondragon/refermint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/refermint-backend/pkg/errors"
	"github.com/angelmondragon/refermint-backend/pkg/logger"
)

const (
	hmacHeader      = "X-Shopify-Hmac-Sha256"
	topicHeader     = "X-Shopify-Topic"
	shopHeader      = "X-Shopify-Shop-Domain"
	webhookIDHeader = "X-Shopify-Webhook-Id"

	// maxWebhookBody bounds the payload read; Shopify order payloads are far
	// below this.
	maxWebhookBody = 1 << 20
)

type orderIngestor interface {
	HandleOrderEvent(ctx context.Context, event *ingest.OrderEvent) (*ingest.Result, error)
}

// ShopifyOrders handles the order lifecycle webhooks. The raw body is
// verified against the shared secret before anything is decoded; a bad or
// missing signature is rejected without touching the payload.
func ShopifyOrders(svc orderIngestor, webhookSecret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingest service unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if !verifyShopifySignature(body, webhookSecret, r.Header.Get(hmacHeader)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "webhook signature mismatch"))
			return
		}

		topic, err := enums.ParseWebhookTopic(strings.TrimSpace(r.Header.Get(topicHeader)))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported topic"))
			return
		}

		shop := strings.TrimSpace(r.Header.Get(shopHeader))
		if shop == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "shop domain header missing"))
			return
		}

		event, err := ingest.ParseOrderEvent(shop, topic, strings.TrimSpace(r.Header.Get(webhookIDHeader)), body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithShop(ctx, shop)
			ctx = logg.WithOrderID(ctx, event.OrderID)
		}

		result, err := svc.HandleOrderEvent(ctx, event)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ack := map[string]any{"received": true, "outcome": string(result.Outcome)}
		if result.Reason != "" {
			ack["reason"] = result.Reason
		}
		responses.WriteSuccess(w, ack)
	}
}

// verifyShopifySignature checks the base64 HMAC-SHA256 of the raw body in
// constant time.
func verifyShopifySignature(body []byte, secret, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
