package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/billing-backend/api/controllers"
	billingcontrollers "github.com/angelmondragon/billing-backend/api/controllers/billing"
	webhookcontrollers "github.com/angelmondragon/billing-backend/api/controllers/webhooks"
	"github.com/angelmondragon/billing-backend/api/middleware"
	"github.com/angelmondragon/billing-backend/api/responses"
	"github.com/angelmondragon/billing-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/billing-backend/pkg/errors"
	"github.com/angelmondragon/billing-backend/pkg/logger"
)

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Resolver middleware.SubscriberResolver
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Gatherer prometheus.Gatherer

	Checkout      billingcontrollers.CheckoutService
	Subscriptions billingcontrollers.SubscriptionService

	StripeWebhook webhookcontrollers.StripeWebhookParams
}

func NewRouter(deps Dependencies) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
		middleware.Options,
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeRouteNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeMethodNotAllowed, r.Method+" not allowed"))
	})

	r.Get("/health/live", controllers.HealthLive(cfg))
	r.Get("/health/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
		"db":    deps.DB,
		"redis": deps.Redis,
	}, logg))

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	webhook := deps.StripeWebhook
	if webhook.Logger == nil {
		webhook.Logger = logg
	}
	if webhook.MaxBodyBytes == 0 {
		webhook.MaxBodyBytes = cfg.Webhook.MaxBodyBytes
	}
	r.Post("/api/v1/webhooks/stripe", webhookcontrollers.StripeWebhook(webhook))

	// Auth wraps each endpoint, after method matching.
	authed := r.With(middleware.Auth(deps.Resolver, logg))
	authed.Post("/api/v1/billing/checkout", billingcontrollers.Checkout(deps.Checkout, logg))
	authed.Post("/api/v1/billing/subscription", billingcontrollers.Subscription(deps.Subscriptions, logg))

	return r
}
