package subscriptions

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/billing-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/billing-backend/pkg/stripe"
)

const prorationCreate = "create_prorations"

// SwapPrice moves the sole billable item of a live provider subscription onto
// newPriceID with proration.
func SwapPrice(ctx context.Context, client StripeSubscriptionClient, subscriptionID, newPriceID string) (*stripe.Subscription, error) {
	live, err := client.Get(ctx, subscriptionID)
	if err != nil {
		return nil, pkgstripe.ProviderError(err, "failed to retrieve subscription")
	}

	item, err := soleItem(live)
	if err != nil {
		return nil, err
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(item.ID),
				Price: stripe.String(newPriceID),
			},
		},
		ProrationBehavior: stripe.String(prorationCreate),
	}
	updated, err := client.Update(ctx, subscriptionID, params)
	if err != nil {
		return nil, pkgstripe.ProviderError(err, "failed to update subscription plan")
	}
	return updated, nil
}

func soleItem(sub *stripe.Subscription) (*stripe.SubscriptionItem, error) {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) != 1 || sub.Items.Data[0] == nil {
		count := 0
		if sub != nil && sub.Items != nil {
			count = len(sub.Items.Data)
		}
		return nil, pkgerrors.New(pkgerrors.CodeInconsistentState, fmt.Sprintf("expected exactly one billable item, found %d", count))
	}
	return sub.Items.Data[0], nil
}
