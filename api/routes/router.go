package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/refermint-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/refermint-backend/api/controllers/webhooks"
	"github.com/angelmondragon/refermint-backend/api/middleware"
	"github.com/angelmondragon/refermint-backend/internal/affiliates"
	"github.com/angelmondragon/refermint-backend/internal/clicks"
	"github.com/angelmondragon/refermint-backend/internal/ingest"
	"github.com/angelmondragon/refermint-backend/pkg/config"
	"github.com/angelmondragon/refermint-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbPinger controllers.Pinger,
	redisPinger controllers.Pinger,
	clickService *clicks.Service,
	affiliateRepo *affiliates.Repository,
	ingestService *ingest.Service,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": dbPinger,
			"redis":    redisPinger,
		}))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/t/click", controllers.TrackClick(clickService, affiliateRepo, logg))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/shopify/orders", webhookcontrollers.ShopifyOrders(ingestService, cfg.Shopify.WebhookSecret, logg))
	})

	return r
}
