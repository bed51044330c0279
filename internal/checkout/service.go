package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/billing-backend/internal/billing"
	"github.com/angelmondragon/billing-backend/internal/subscriptions"
	"github.com/angelmondragon/billing-backend/pkg/auth"
	"github.com/angelmondragon/billing-backend/pkg/db"
	"github.com/angelmondragon/billing-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/billing-backend/pkg/errors"
	"github.com/angelmondragon/billing-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/billing-backend/pkg/stripe"
)

// Metadata keys written on provider customers, sessions and subscriptions.
const (
	MetadataSubscriberID = "subscriber_id"
	MetadataPlanName     = "plan_name"
)

// Service starts paid plans for subscribers.
type Service interface {
	Start(ctx context.Context, subscriber auth.Subscriber, input StartInput) (*StartResult, error)
}

// ServiceParams groups dependencies for the checkout service.
type ServiceParams struct {
	BillingRepo        billing.Repository
	StripeClient       StripeCheckoutClient
	SubscriptionClient subscriptions.StripeSubscriptionClient
	Logger             *logger.Logger
}

// StartInput is a checkout request.
type StartInput struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// StartResult holds either a hosted session or the id of a subscription whose
// plan was swapped in place.
type StartResult struct {
	SessionID      string
	URL            string
	Swapped        bool
	SubscriptionID string
}

type service struct {
	billingRepo billing.Repository
	stripe      StripeCheckoutClient
	subs        subscriptions.StripeSubscriptionClient
	logg        *logger.Logger
}

// NewService builds a checkout service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.StripeClient == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	if params.SubscriptionClient == nil {
		return nil, fmt.Errorf("subscription client required")
	}
	return &service{
		billingRepo: params.BillingRepo,
		stripe:      params.StripeClient,
		subs:        params.SubscriptionClient,
		logg:        params.Logger,
	}, nil
}

func (s *service) Start(ctx context.Context, subscriber auth.Subscriber, input StartInput) (*StartResult, error) {
	if err := validateInput(subscriber, input); err != nil {
		return nil, err
	}
	priceID := strings.TrimSpace(input.PriceID)
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"user_id":  subscriber.ID.String(),
			"price_id": priceID,
		})
	}

	customerID, err := s.ensureCustomer(ctx, subscriber)
	if err != nil {
		return nil, err
	}

	current, err := s.billingRepo.FindEntitledSubscription(ctx, subscriber.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to load subscription")
	}
	if current != nil && current.PriceID == priceID {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadySubscribed, "already subscribed to this plan")
	}

	planName, err := s.validatePlan(ctx, priceID)
	if err != nil {
		return nil, err
	}

	if current != nil {
		if _, err := subscriptions.SwapPrice(ctx, s.subs, current.SubscriptionID, priceID); err != nil {
			return nil, err
		}
		if s.logg != nil {
			s.logg.Info(s.logg.WithSubscriptionID(ctx, current.SubscriptionID), "checkout swapped existing subscription plan")
		}
		return &StartResult{Swapped: true, SubscriptionID: current.SubscriptionID}, nil
	}

	metadata := map[string]string{
		MetadataSubscriberID: subscriber.ID.String(),
		MetadataPlanName:     planName,
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(customerID),
		SuccessURL: stripe.String(strings.TrimSpace(input.SuccessURL)),
		CancelURL:  stripe.String(strings.TrimSpace(input.CancelURL)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	sess, err := s.stripe.CreateSession(ctx, params)
	if err != nil {
		return nil, pkgstripe.ProviderError(err, "failed to create checkout session")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "session_id", sess.ID), "checkout session created")
	}
	return &StartResult{SessionID: sess.ID, URL: sess.URL}, nil
}

func validateInput(subscriber auth.Subscriber, input StartInput) error {
	if subscriber.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "subscriber required")
	}
	details := map[string]string{}
	if strings.TrimSpace(input.PriceID) == "" {
		details["priceId"] = "required"
	}
	for field, raw := range map[string]string{"successUrl": input.SuccessURL, "cancelUrl": input.CancelURL} {
		if !isAbsoluteURL(raw) {
			details[field] = "must be an absolute url"
		}
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid checkout request").WithDetails(details)
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && u.Scheme != "" && u.Host != ""
}

// ensureCustomer returns the provider customer for the subscriber, creating or
// replacing the mapping when none is live.
func (s *service) ensureCustomer(ctx context.Context, subscriber auth.Subscriber) (string, error) {
	existing, err := s.billingRepo.FindLiveCustomer(ctx, subscriber.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to load billing customer")
	}

	if existing != nil {
		cust, err := s.stripe.GetCustomer(ctx, existing.CustomerID)
		switch {
		case err == nil && cust != nil && !cust.Deleted:
			return existing.CustomerID, nil
		case err != nil && !pkgstripe.IsResourceMissing(err):
			return "", pkgstripe.ProviderError(err, "failed to retrieve customer")
		}
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "customer_id", existing.CustomerID), "billing customer missing at provider; replacing mapping")
		}
		if err := s.billingRepo.SoftDeleteCustomer(ctx, existing.ID); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to retire stale billing customer")
		}
	}

	return s.createCustomer(ctx, subscriber)
}

func (s *service) createCustomer(ctx context.Context, subscriber auth.Subscriber) (string, error) {
	params := &stripe.CustomerParams{}
	if email := strings.TrimSpace(subscriber.Email); email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata(MetadataSubscriberID, subscriber.ID.String())

	cust, err := s.stripe.CreateCustomer(ctx, params)
	if err != nil {
		return "", pkgstripe.ProviderError(err, "failed to create customer")
	}

	record := &models.BillingCustomer{SubscriberID: subscriber.ID, CustomerID: cust.ID}
	insertErr := s.billingRepo.CreateCustomer(ctx, record)
	if insertErr == nil {
		if s.logg != nil {
			s.logg.Info(s.logg.WithField(ctx, "customer_id", cust.ID), "billing customer created")
		}
		return cust.ID, nil
	}

	compensateErr := s.stripe.DeleteCustomer(ctx, cust.ID)
	if compensateErr != nil && s.logg != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"customer_id":           cust.ID,
			"manual_reconciliation": true,
		}), "failed to delete orphaned provider customer", compensateErr)
	}

	if db.IsUniqueViolation(insertErr, billing.ConstraintLiveCustomer) {
		winner, err := s.billingRepo.FindLiveCustomer(ctx, subscriber.ID)
		if err == nil && winner != nil {
			return winner.CustomerID, nil
		}
	}

	return "", pkgerrors.Wrap(pkgerrors.CodeInconsistentState, insertErr, "failed to persist billing customer")
}

// validatePlan checks the price is an active recurring price and returns its
// display name.
func (s *service) validatePlan(ctx context.Context, priceID string) (string, error) {
	p, err := subscriptions.ValidatePrice(ctx, s.stripe, priceID)
	if err != nil {
		return "", err
	}
	return PlanName(p), nil
}

// PlanName is the price nickname, then its lookup key, then its id.
func PlanName(p *stripe.Price) string {
	if p == nil {
		return ""
	}
	if name := strings.TrimSpace(p.Nickname); name != "" {
		return name
	}
	if key := strings.TrimSpace(p.LookupKey); key != "" {
		return key
	}
	return p.ID
}
