package middleware

import (
	"context"

	"github.com/angelmondragon/billing-backend/pkg/auth"
)

type contextKey string

const ctxSubscriber contextKey = "subscriber"

// SubscriberFromContext returns the authenticated subscriber, if any.
func SubscriberFromContext(ctx context.Context) (auth.Subscriber, bool) {
	if ctx == nil {
		return auth.Subscriber{}, false
	}
	sub, ok := ctx.Value(ctxSubscriber).(auth.Subscriber)
	return sub, ok
}

// WithSubscriber injects the subscriber into the context.
func WithSubscriber(ctx context.Context, sub auth.Subscriber) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxSubscriber, sub)
}
