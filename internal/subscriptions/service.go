package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/billing-backend/internal/billing"
	"github.com/angelmondragon/billing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/billing-backend/pkg/errors"
	"github.com/angelmondragon/billing-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/billing-backend/pkg/stripe"
)

// Service applies caller-requested changes to an owned subscription. It never
// writes local state; the webhook reconciler applies the provider's outcome.
type Service interface {
	Apply(ctx context.Context, subscriberID uuid.UUID, input ActionInput) (*ActionResult, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	BillingRepo  billing.Repository
	StripeClient StripeSubscriptionClient
	Prices       PriceLookup
	Logger       *logger.Logger
}

// ActionInput is a mutation request.
type ActionInput struct {
	Action         string
	SubscriptionID string
	NewPriceID     string
}

// ActionResult describes the provider-side outcome of an action.
type ActionResult struct {
	Action            enums.SubscriptionAction
	SubscriptionID    string
	PriceID           string
	Status            enums.SubscriptionStatus
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
}

type service struct {
	billingRepo billing.Repository
	stripe      StripeSubscriptionClient
	prices      PriceLookup
	logg        *logger.Logger
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.StripeClient == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	if params.Prices == nil {
		return nil, fmt.Errorf("price lookup required")
	}
	return &service{
		billingRepo: params.BillingRepo,
		stripe:      params.StripeClient,
		prices:      params.Prices,
		logg:        params.Logger,
	}, nil
}

func (s *service) Apply(ctx context.Context, subscriberID uuid.UUID, input ActionInput) (*ActionResult, error) {
	if subscriberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "subscriber required")
	}
	action, err := enums.ParseSubscriptionAction(input.Action)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "action must be one of update, cancel, reactivate")
	}
	subscriptionID := strings.TrimSpace(input.SubscriptionID)
	if subscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscriptionId is required")
	}
	newPriceID := strings.TrimSpace(input.NewPriceID)
	if action == enums.SubscriptionActionUpdate && newPriceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "newPriceId is required for update")
	}

	record, err := s.billingRepo.FindSubscriptionByProviderID(ctx, subscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to load subscription")
	}
	// Missing and foreign records are indistinguishable to the caller.
	if record == nil || record.SubscriberID != subscriberID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}

	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"subscription_id": subscriptionID,
			"action":          string(action),
		})
	}

	var result *ActionResult
	switch action {
	case enums.SubscriptionActionUpdate:
		if newPriceID == record.PriceID {
			return nil, pkgerrors.New(pkgerrors.CodeSamePlan, "subscription is already on this plan")
		}
		if _, err := ValidatePrice(ctx, s.prices, newPriceID); err != nil {
			return nil, err
		}
		result, err = s.update(ctx, subscriptionID, newPriceID)
	case enums.SubscriptionActionCancel:
		result, err = s.setCancelAtPeriodEnd(ctx, subscriptionID, true)
	case enums.SubscriptionActionReactivate:
		if !record.CancelAtPeriodEnd {
			return nil, pkgerrors.New(pkgerrors.CodeNotScheduledForCancellation, "subscription is not scheduled for cancellation")
		}
		result, err = s.setCancelAtPeriodEnd(ctx, subscriptionID, false)
	}
	if err != nil {
		return nil, err
	}
	result.Action = action

	if s.logg != nil {
		s.logg.Info(ctx, "subscription action accepted by provider")
	}
	return result, nil
}

func (s *service) update(ctx context.Context, subscriptionID, newPriceID string) (*ActionResult, error) {
	updated, err := SwapPrice(ctx, s.stripe, subscriptionID, newPriceID)
	if err != nil {
		return nil, err
	}
	result := resultFromProvider(subscriptionID, updated)
	if result.PriceID == "" {
		result.PriceID = newPriceID
	}
	return result, nil
}

func (s *service) setCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*ActionResult, error) {
	updated, err := s.stripe.Update(ctx, subscriptionID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	})
	if err != nil {
		return nil, pkgstripe.ProviderError(err, "failed to update subscription cancellation")
	}
	result := resultFromProvider(subscriptionID, updated)
	result.CancelAtPeriodEnd = cancel
	return result, nil
}

func resultFromProvider(subscriptionID string, sub *stripe.Subscription) *ActionResult {
	result := &ActionResult{SubscriptionID: subscriptionID}
	if sub == nil {
		return result
	}
	result.Status = enums.SubscriptionStatusFromProvider(string(sub.Status))
	result.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		item := sub.Items.Data[0]
		if item.Price != nil {
			result.PriceID = item.Price.ID
		}
		result.CurrentPeriodEnd = pkgstripe.UnixTime(item.CurrentPeriodEnd)
	}
	return result
}
