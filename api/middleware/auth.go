package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/billing-backend/api/responses"
	"github.com/angelmondragon/billing-backend/pkg/auth"
	"github.com/angelmondragon/billing-backend/pkg/logger"
)

// SubscriberResolver turns a bearer credential into the calling subscriber.
type SubscriberResolver interface {
	Resolve(ctx context.Context, token string) (auth.Subscriber, error)
}

// Auth validates the bearer token and seeds the request context with the subscriber.
func Auth(resolver SubscriberResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subscriber, err := resolver.Resolve(r.Context(), bearerToken(r))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithSubscriber(r.Context(), subscriber)
			if logg != nil {
				ctx = logg.WithUserID(ctx, subscriber.ID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return ""
}
