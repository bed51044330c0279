package checkout

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/price"

	pkgstripe "github.com/angelmondragon/billing-backend/pkg/stripe"
)

// StripeCheckoutClient exposes the Stripe operations the checkout flow needs.
type StripeCheckoutClient interface {
	GetCustomer(ctx context.Context, id string) (*stripe.Customer, error)
	CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	GetPrice(ctx context.Context, id string) (*stripe.Price, error)
	CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeClientWrapper struct {
	timeout time.Duration
}

// NewStripeClient wraps the Stripe customer, price and checkout APIs.
func NewStripeClient(api *pkgstripe.Client) StripeCheckoutClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{timeout: api.RequestTimeout()}
}

func (w *stripeClientWrapper) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	ctx, cancel := pkgstripe.CallContext(ctx, w.timeout)
	defer cancel()
	return customer.Get(id, &stripe.CustomerParams{Params: stripe.Params{Context: ctx}})
}

func (w *stripeClientWrapper) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	ctx, cancel := pkgstripe.CallContext(ctx, w.timeout)
	defer cancel()
	if params == nil {
		params = &stripe.CustomerParams{}
	}
	params.Context = ctx
	return customer.New(params)
}

func (w *stripeClientWrapper) DeleteCustomer(ctx context.Context, id string) error {
	ctx, cancel := pkgstripe.CallContext(ctx, w.timeout)
	defer cancel()
	_, err := customer.Del(id, &stripe.CustomerParams{Params: stripe.Params{Context: ctx}})
	return err
}

func (w *stripeClientWrapper) GetPrice(ctx context.Context, id string) (*stripe.Price, error) {
	ctx, cancel := pkgstripe.CallContext(ctx, w.timeout)
	defer cancel()
	return price.Get(id, &stripe.PriceParams{Params: stripe.Params{Context: ctx}})
}

func (w *stripeClientWrapper) CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	ctx, cancel := pkgstripe.CallContext(ctx, w.timeout)
	defer cancel()
	if params == nil {
		params = &stripe.CheckoutSessionParams{}
	}
	params.Context = ctx
	return session.New(params)
}
