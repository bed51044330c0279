package subscriptions

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/subscription"

	pkgstripe "github.com/angelmondragon/billing-backend/pkg/stripe"
)

// StripeSubscriptionClient exposes the subset of Stripe subscription operations
// used by the mutator and the checkout swap path.
type StripeSubscriptionClient interface {
	Get(ctx context.Context, id string) (*stripe.Subscription, error)
	Update(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

type stripeClientWrapper struct {
	timeout time.Duration
}

// NewStripeClient wraps the Stripe subscription API so the services can be tested.
func NewStripeClient(api *pkgstripe.Client) StripeSubscriptionClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{timeout: api.RequestTimeout()}
}

func (w *stripeClientWrapper) Get(ctx context.Context, id string) (*stripe.Subscription, error) {
	ctx, cancel := pkgstripe.CallContext(ctx, w.timeout)
	defer cancel()
	return subscription.Get(id, &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}})
}

func (w *stripeClientWrapper) Update(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	ctx, cancel := pkgstripe.CallContext(ctx, w.timeout)
	defer cancel()
	if params == nil {
		params = &stripe.SubscriptionParams{}
	}
	params.Context = ctx
	return subscription.Update(id, params)
}
