package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/billing-backend/pkg/auth"
	"github.com/angelmondragon/billing-backend/pkg/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "billing", ExpirationMinutes: 10}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(auth.NewResolver(testJWTConfig()), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler must not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(auth.NewResolver(testJWTConfig()), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler must not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsTokenWithoutBearerScheme(t *testing.T) {
	cfg := testJWTConfig()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.Subscriber{ID: uuid.New()})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	handler := Auth(auth.NewResolver(cfg), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	cfg := testJWTConfig()
	want := auth.Subscriber{ID: uuid.New(), Email: "ada@example.com"}
	token, err := auth.MintAccessToken(cfg, time.Now(), want)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	var got auth.Subscriber
	handler := Auth(auth.NewResolver(cfg), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, ok := SubscriberFromContext(r.Context())
		if !ok {
			t.Fatalf("subscriber missing from context")
		}
		got = sub
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got != want {
		t.Fatalf("expected subscriber %+v, got %+v", want, got)
	}
}
