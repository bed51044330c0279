package subscriptions

import (
	"context"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/billing-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/billing-backend/pkg/stripe"
)

// PriceLookup retrieves provider prices.
type PriceLookup interface {
	GetPrice(ctx context.Context, id string) (*stripe.Price, error)
}

// ValidatePrice checks priceID names an active recurring price.
func ValidatePrice(ctx context.Context, prices PriceLookup, priceID string) (*stripe.Price, error) {
	p, err := prices.GetPrice(ctx, priceID)
	if err != nil {
		if pkgstripe.IsResourceMissing(err) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidPlan, "plan does not exist")
		}
		return nil, pkgstripe.ProviderError(err, "failed to retrieve price")
	}
	if p == nil || !p.Active {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidPlan, "plan is not active")
	}
	if p.Recurring == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidPlan, "plan is not a recurring price")
	}
	return p, nil
}
