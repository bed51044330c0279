package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/billing-backend/internal/billing"
	stripewebhook "github.com/angelmondragon/billing-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/billing-backend/pkg/logger"
)

const defaultReconcileLimit = 250

type subscriptionResyncer interface {
	Resync(ctx context.Context, subscriptionID string) (stripewebhook.Outcome, error)
}

// SubscriptionReconcileJobParams configures the subscription sync cron job.
type SubscriptionReconcileJobParams struct {
	Logger      *logger.Logger
	BillingRepo billing.Repository
	Reconciler  subscriptionResyncer
	Limit       int
}

// NewSubscriptionReconcileJob builds a job that re-reads provider state for
// non-terminal subscriptions, healing missed webhooks.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &subscriptionReconcileJob{
		logg:        params.Logger,
		billingRepo: params.BillingRepo,
		reconciler:  params.Reconciler,
		limit:       limit,
	}, nil
}

type subscriptionReconcileJob struct {
	logg        *logger.Logger
	billingRepo billing.Repository
	reconciler  subscriptionResyncer
	limit       int
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	subs, err := j.billingRepo.ListSubscriptionsForReconciliation(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	outcomes := map[stripewebhook.Outcome]int{}
	var errs error
	for _, sub := range subs {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		outcome, err := j.reconciler.Resync(ctx, sub.SubscriptionID)
		outcomes[outcome]++
		if err != nil {
			j.logg.Error(j.logg.WithSubscriptionID(ctx, sub.SubscriptionID), "subscription resync failed", err)
			errs = multierr.Append(errs, fmt.Errorf("resync %s: %w", sub.SubscriptionID, err))
		}
	}

	fields := map[string]any{"checked": len(subs)}
	for outcome, count := range outcomes {
		fields["outcome_"+string(outcome)] = count
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "subscription reconcile finished")
	return errs
}
