package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/billing-backend/api/controllers/webhooks"
	"github.com/angelmondragon/billing-backend/internal/checkout"
	"github.com/angelmondragon/billing-backend/internal/subscriptions"
	stripewebhook "github.com/angelmondragon/billing-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/billing-backend/pkg/auth"
	"github.com/angelmondragon/billing-backend/pkg/config"
	"github.com/angelmondragon/billing-backend/pkg/metrics"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubCheckout struct{ calls int }

func (s *stubCheckout) Start(ctx context.Context, subscriber auth.Subscriber, input checkout.StartInput) (*checkout.StartResult, error) {
	s.calls++
	return &checkout.StartResult{SessionID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil
}

type stubSubscriptions struct{}

func (stubSubscriptions) Apply(ctx context.Context, subscriberID uuid.UUID, input subscriptions.ActionInput) (*subscriptions.ActionResult, error) {
	return nil, errors.New("not used")
}

type stubWebhookService struct{}

func (stubWebhookService) HandleEvent(ctx context.Context, event *stripe.Event) (stripewebhook.Outcome, error) {
	return stripewebhook.OutcomeIgnored, nil
}

type stubSigner struct{}

func (stubSigner) SigningSecret() string { return "whsec_test" }

func testConfig() *config.Config {
	return &config.Config{
		App:     config.AppConfig{Env: "test"},
		JWT:     config.JWTConfig{Secret: "secret", Issuer: "billing", ExpirationMinutes: 10},
		CORS:    config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}, MaxAge: 60},
		Webhook: config.WebhookConfig{MaxBodyBytes: 65536},
	}
}

func newTestRouter(t *testing.T, checkoutSvc *stubCheckout, redisErr error) http.Handler {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	return NewRouter(Dependencies{
		Config:        cfg,
		Resolver:      auth.NewResolver(cfg.JWT),
		DB:            stubPinger{},
		Redis:         stubPinger{err: redisErr},
		Gatherer:      reg,
		Checkout:      checkoutSvc,
		Subscriptions: stubSubscriptions{},
		StripeWebhook: webhooks.StripeWebhookParams{
			Service: stubWebhookService{},
			Client:  stubSigner{},
			Metrics: metrics.NewWebhookMetrics(reg),
		},
	})
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthRoutes(t *testing.T) {
	h := newTestRouter(t, &stubCheckout{}, nil)

	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health/live", "", nil).Code)
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health/ready", "", nil).Code)
}

func TestReadyReportsRedisOutage(t *testing.T) {
	h := newTestRouter(t, &stubCheckout{}, errors.New("dial tcp: refused"))

	rec := do(h, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"DEPENDENCY_ERROR"`)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(t, &stubCheckout{}, nil)

	rec := do(h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBillingRequiresAuth(t *testing.T) {
	svc := &stubCheckout{}
	h := newTestRouter(t, svc, nil)

	rec := do(h, http.MethodPost, "/api/v1/billing/checkout", `{"priceId":"price_1"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, svc.calls)
}

func TestCheckoutWithValidToken(t *testing.T) {
	svc := &stubCheckout{}
	h := newTestRouter(t, svc, nil)
	token, err := auth.MintAccessToken(testConfig().JWT, time.Now(), auth.Subscriber{ID: uuid.New(), Email: "ada@example.com"})
	require.NoError(t, err)

	rec := do(h, http.MethodPost, "/api/v1/billing/checkout",
		`{"priceId":"price_1","successUrl":"https://app/ok","cancelUrl":"https://app/no"}`,
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"sessionId":"cs_1","url":"https://checkout.stripe.com/c/cs_1"}`, rec.Body.String())
	require.Equal(t, 1, svc.calls)
}

func TestWrongMethodReturnsJSON405(t *testing.T) {
	h := newTestRouter(t, &stubCheckout{}, nil)

	for _, path := range []string{"/api/v1/billing/checkout", "/api/v1/billing/subscription", "/api/v1/webhooks/stripe"} {
		rec := do(h, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
		require.Contains(t, rec.Body.String(), `"code":"METHOD_NOT_ALLOWED"`, path)
	}
}

func TestOptionsReturnsEmpty200(t *testing.T) {
	h := newTestRouter(t, &stubCheckout{}, nil)

	rec := do(h, http.MethodOptions, "/api/v1/billing/subscription", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())
}

func TestPreflightAllowsConfiguredOrigin(t *testing.T) {
	h := newTestRouter(t, &stubCheckout{}, nil)

	rec := do(h, http.MethodOptions, "/api/v1/billing/checkout", "", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": http.MethodPost,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebhookRejectsUnsignedPayload(t *testing.T) {
	h := newTestRouter(t, &stubCheckout{}, nil)

	rec := do(h, http.MethodPost, "/api/v1/webhooks/stripe", `{"id":"evt_1"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"INVALID_SIGNATURE"`)
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	h := newTestRouter(t, &stubCheckout{}, nil)

	rec := do(h, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"ROUTE_NOT_FOUND"`)
}
