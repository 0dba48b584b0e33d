package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/refermint-backend/internal/ingest"
	pkgerrors "github.com/angelmondragon/refermint-backend/pkg/errors"
)

const testSecret = "shhh"

type stubIngestor struct {
	events []*ingest.OrderEvent
	result *ingest.Result
	err    error
}

func (s *stubIngestor) HandleOrderEvent(_ context.Context, event *ingest.OrderEvent) (*ingest.Result, error) {
	s.events = append(s.events, event)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func orderBody() []byte {
	return []byte(`{
		"id": 5001,
		"order_number": 1042,
		"financial_status": "paid",
		"currency": "USD",
		"total_price": "109.95",
		"subtotal_price": "99.95",
		"created_at": "2024-06-01T12:00:00Z",
		"email": "jane@example.com"
	}`)
}

func newWebhookRequest(body []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/shopify/orders", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(hmacHeader, signature)
	}
	req.Header.Set(topicHeader, "orders/updated")
	req.Header.Set(shopHeader, "demo.myshopify.com")
	req.Header.Set(webhookIDHeader, "evt-1")
	return req
}

func TestShopifyOrdersAcknowledgesValidEvent(t *testing.T) {
	svc := &stubIngestor{result: &ingest.Result{Outcome: ingest.OutcomeCommissioned}}
	handler := ShopifyOrders(svc, testSecret, nil)

	body := orderBody()
	rec := httptest.NewRecorder()
	handler(rec, newWebhookRequest(body, sign(body)))

	assert.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Data["received"])
	assert.Equal(t, "commissioned", envelope.Data["outcome"])

	require.Len(t, svc.events, 1)
	event := svc.events[0]
	assert.Equal(t, "demo.myshopify.com", event.Shop)
	assert.Equal(t, int64(5001), event.OrderID)
	assert.Equal(t, "evt-1", event.EventID)
}

func TestShopifyOrdersRejectsBadSignature(t *testing.T) {
	svc := &stubIngestor{result: &ingest.Result{Outcome: ingest.OutcomeAttributed}}
	handler := ShopifyOrders(svc, testSecret, nil)

	rec := httptest.NewRecorder()
	handler(rec, newWebhookRequest(orderBody(), "bm90LXRoZS1zaWduYXR1cmU="))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.events)
}

func TestShopifyOrdersRejectsMissingSignature(t *testing.T) {
	svc := &stubIngestor{result: &ingest.Result{Outcome: ingest.OutcomeAttributed}}
	handler := ShopifyOrders(svc, testSecret, nil)

	rec := httptest.NewRecorder()
	handler(rec, newWebhookRequest(orderBody(), ""))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.events)
}

func TestShopifyOrdersRejectsUnknownTopic(t *testing.T) {
	svc := &stubIngestor{result: &ingest.Result{Outcome: ingest.OutcomeAttributed}}
	handler := ShopifyOrders(svc, testSecret, nil)

	body := orderBody()
	req := newWebhookRequest(body, sign(body))
	req.Header.Set(topicHeader, "products/create")

	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.events)
}

func TestShopifyOrdersRejectsMissingShopHeader(t *testing.T) {
	svc := &stubIngestor{result: &ingest.Result{Outcome: ingest.OutcomeAttributed}}
	handler := ShopifyOrders(svc, testSecret, nil)

	body := orderBody()
	req := newWebhookRequest(body, sign(body))
	req.Header.Del(shopHeader)

	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShopifyOrdersRejectsUndecodableBody(t *testing.T) {
	svc := &stubIngestor{result: &ingest.Result{Outcome: ingest.OutcomeAttributed}}
	handler := ShopifyOrders(svc, testSecret, nil)

	body := []byte(`{"id": `)
	rec := httptest.NewRecorder()
	handler(rec, newWebhookRequest(body, sign(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.events)
}

// A payload missing required fields is acknowledged, not rejected: any
// non-2xx makes the platform retry a permanently bad payload.
func TestShopifyOrdersAcknowledgesIncompletePayload(t *testing.T) {
	svc := &stubIngestor{result: &ingest.Result{
		Outcome: ingest.OutcomeSkipped,
		Reason:  ingest.SkipMissingFields,
	}}
	handler := ShopifyOrders(svc, testSecret, nil)

	body := []byte(`{"currency": "USD"}`)
	rec := httptest.NewRecorder()
	handler(rec, newWebhookRequest(body, sign(body)))

	assert.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Data["received"])
	assert.Equal(t, ingest.SkipMissingFields, envelope.Data["reason"])

	require.Len(t, svc.events, 1)
	assert.Equal(t, []string{"id"}, svc.events[0].MissingFields)
}

func TestShopifyOrdersSurfacesProcessingFailure(t *testing.T) {
	svc := &stubIngestor{err: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")}
	handler := ShopifyOrders(svc, testSecret, nil)

	body := orderBody()
	rec := httptest.NewRecorder()
	handler(rec, newWebhookRequest(body, sign(body)))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
