package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bobbystable/voicepay-backend/api/controllers"
	"github.com/bobbystable/voicepay-backend/api/middleware"
	"github.com/bobbystable/voicepay-backend/internal/governor"
	"github.com/bobbystable/voicepay-backend/internal/payments"
	"github.com/bobbystable/voicepay-backend/internal/reconcile"
	"github.com/bobbystable/voicepay-backend/internal/sessions"
	"github.com/bobbystable/voicepay-backend/pkg/config"
	"github.com/bobbystable/voicepay-backend/pkg/db"
	"github.com/bobbystable/voicepay-backend/pkg/logger"
	"github.com/bobbystable/voicepay-backend/pkg/metrics"
	"github.com/bobbystable/voicepay-backend/pkg/redis"
	"github.com/bobbystable/voicepay-backend/pkg/signalwire"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	dialogue *payments.Service,
	gov *governor.Governor,
	sessionStore *sessions.Store,
	reconciler *reconcile.Service,
	swClient *signalwire.Client,
	webhookGuard *reconcile.DedupeGuard,
	payMetrics *metrics.PaymentMetrics,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/voice/swaig", controllers.SWAIGFunction(dialogue, gov, sessionStore, payMetrics, logg))
		r.Post("/webhooks/signalwire/payment", controllers.PaymentCallback(reconciler, swClient, webhookGuard, redisClient, logg))
	})

	if cfg.FeatureFlags.DebugEndpoints && !cfg.App.IsProd() {
		r.Get("/debug/payment-sessions", controllers.DebugPaymentSessions(sessionStore, logg))
	}

	return r
}
