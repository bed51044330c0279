package stripewebhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/billing-backend/internal/billing"
	"github.com/angelmondragon/billing-backend/internal/subscriptions"
	"github.com/angelmondragon/billing-backend/pkg/db"
	"github.com/angelmondragon/billing-backend/pkg/db/models"
	"github.com/angelmondragon/billing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/billing-backend/pkg/errors"
	"github.com/angelmondragon/billing-backend/pkg/logger"
	"github.com/angelmondragon/billing-backend/pkg/metrics"
	"github.com/angelmondragon/billing-backend/pkg/outbox"
	"github.com/angelmondragon/billing-backend/pkg/outbox/payloads"
	pkgstripe "github.com/angelmondragon/billing-backend/pkg/stripe"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	BillingRepo       billing.Repository
	StripeClient      subscriptions.StripeSubscriptionClient
	TransactionRunner txRunner
	Outbox            outboxEmitter
	Metrics           *metrics.WebhookMetrics
	Logger            *logger.Logger
	Now               func() time.Time
}

// Service reconciles local subscription records with provider events.
type Service struct {
	billingRepo billing.Repository
	stripe      subscriptions.StripeSubscriptionClient
	txRunner    txRunner
	outbox      outboxEmitter
	metrics     *metrics.WebhookMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.StripeClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		billingRepo: params.BillingRepo,
		stripe:      params.StripeClient,
		txRunner:    params.TransactionRunner,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// HandleEvent translates a verified Stripe event and applies it.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (Outcome, error) {
	started := s.now()
	eventType := ""
	if event != nil {
		eventType = string(event.Type)
		if s.logg != nil {
			ctx = s.logg.WithEvent(ctx, event.ID, eventType)
		}
	}

	outcome, err := s.handle(ctx, event)
	if err != nil {
		outcome = OutcomeFailed
	}
	s.metrics.Observe(eventType, string(outcome), s.now().Sub(started))
	return outcome, err
}

func (s *Service) handle(ctx context.Context, event *stripe.Event) (Outcome, error) {
	evt, err := s.translate(ctx, event)
	if err != nil {
		return OutcomeFailed, err
	}
	if evt == nil {
		if s.logg != nil {
			s.logg.Debug(ctx, "stripe event ignored")
		}
		return OutcomeIgnored, nil
	}
	return s.Apply(ctx, *evt)
}

// Resync re-reads the provider subscription and applies it as a fresh update.
// A subscription the provider no longer knows is treated as deleted.
func (s *Service) Resync(ctx context.Context, subscriptionID string) (Outcome, error) {
	now := s.now().UTC()
	snapshot, err := s.stripe.Get(ctx, subscriptionID)
	if err != nil {
		if !pkgstripe.IsResourceMissing(err) {
			return OutcomeFailed, pkgstripe.ProviderError(err, "failed to retrieve subscription")
		}
		return s.Apply(ctx, BillingEvent{
			ID:             "resync:" + subscriptionID,
			Type:           enums.BillingEventSubscriptionDeleted,
			SubscriptionID: subscriptionID,
			OccurredAt:     now,
			Resync:         true,
		})
	}
	evt := BillingEvent{
		ID:             "resync:" + subscriptionID,
		Type:           enums.BillingEventSubscriptionUpdated,
		SubscriptionID: subscriptionID,
		OccurredAt:     now,
		Snapshot:       snapshot,
		Resync:         true,
	}
	fillFromSnapshot(&evt)
	return s.Apply(ctx, evt)
}

// Apply runs the transition for evt against the record with its subscription
// id, inside one transaction with the outbox write.
func (s *Service) Apply(ctx context.Context, evt BillingEvent) (Outcome, error) {
	t, ok := transitions[evt.Type]
	if !ok {
		return OutcomeIgnored, nil
	}
	if evt.SubscriptionID == "" {
		return OutcomeFailed, pkgerrors.New(pkgerrors.CodeValidation, "subscription id missing")
	}
	if s.logg != nil {
		ctx = s.logg.WithSubscriptionID(ctx, evt.SubscriptionID)
	}

	var outcome Outcome
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		stored, err := repo.FindSubscriptionByProviderID(ctx, evt.SubscriptionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load subscription")
		}

		if stored == nil {
			if !t.createWhenMissing {
				outcome = OutcomeNotFound
				return nil
			}
			created, err := s.create(ctx, repo, t, evt)
			if err != nil {
				return err
			}
			outcome = OutcomeCreated
			return s.emitStatusChange(ctx, tx, created, "", evt)
		}

		if stored.Status.IsTerminal() {
			outcome = OutcomeTerminal
			return nil
		}
		if !evt.Resync && stored.LastEventAt != nil && evt.OccurredAt.Before(*stored.LastEventAt) {
			outcome = OutcomeStale
			return nil
		}

		previous := stored.Status
		changed := applyTransition(stored, t, evt)
		if !changed {
			outcome = OutcomeUnchanged
			if evt.Resync || (stored.LastEventAt != nil && !evt.OccurredAt.After(*stored.LastEventAt)) {
				return nil
			}
		} else {
			outcome = OutcomeApplied
		}
		if !evt.Resync {
			occurred := evt.OccurredAt
			stored.LastEventAt = &occurred
		}
		if err := repo.UpdateSubscription(ctx, stored); err != nil {
			return persistenceError(err, "update subscription")
		}
		if stored.Status != previous {
			return s.emitStatusChange(ctx, tx, stored, previous, evt)
		}
		return nil
	})
	if err != nil {
		return OutcomeFailed, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "outcome", string(outcome)), "billing event reconciled")
	}
	return outcome, nil
}

func (s *Service) create(ctx context.Context, repo billing.Repository, t transition, evt BillingEvent) (*models.Subscription, error) {
	if evt.SubscriberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscriber_id metadata missing")
	}
	status := t.target(evt)
	if status == "" {
		status = enums.SubscriptionStatusIncomplete
	}
	record := &models.Subscription{
		SubscriptionID: evt.SubscriptionID,
		SubscriberID:   evt.SubscriberID,
		CustomerID:     evt.CustomerID,
		PlanName:       evt.PlanName,
		Status:         status,
	}
	if !evt.Resync {
		occurred := evt.OccurredAt
		record.LastEventAt = &occurred
	}
	if evt.Snapshot != nil {
		fields := readSnapshot(evt.Snapshot)
		record.PriceID = fields.priceID
		record.CancelAtPeriodEnd = fields.cancelAtPeriodEnd
		record.CurrentPeriodStart = fields.currentPeriodStart
		record.CurrentPeriodEnd = fields.currentPeriodEnd
		if record.PlanName == "" {
			record.PlanName = fields.planName
		}
	}
	if err := repo.UpsertSubscription(ctx, record); err != nil {
		return nil, persistenceError(err, "create subscription")
	}
	return record, nil
}

// applyTransition mutates stored per t and reports whether any field changed.
func applyTransition(stored *models.Subscription, t transition, evt BillingEvent) bool {
	before := *stored

	if t.syncSnapshot && evt.Snapshot != nil {
		fields := readSnapshot(evt.Snapshot)
		if fields.priceID != "" && fields.priceID != stored.PriceID {
			stored.PriceID = fields.priceID
			stored.PlanName = fields.planName
		}
		stored.CancelAtPeriodEnd = fields.cancelAtPeriodEnd
		if fields.currentPeriodStart != nil {
			stored.CurrentPeriodStart = fields.currentPeriodStart
		}
		if fields.currentPeriodEnd != nil {
			stored.CurrentPeriodEnd = fields.currentPeriodEnd
		}
	}
	if stored.CustomerID == "" && evt.CustomerID != "" {
		stored.CustomerID = evt.CustomerID
	}
	if target := t.target(evt); target != "" {
		stored.Status = target
	}

	return stored.Status != before.Status ||
		stored.PriceID != before.PriceID ||
		stored.PlanName != before.PlanName ||
		stored.CustomerID != before.CustomerID ||
		stored.CancelAtPeriodEnd != before.CancelAtPeriodEnd ||
		!sameTime(stored.CurrentPeriodStart, before.CurrentPeriodStart) ||
		!sameTime(stored.CurrentPeriodEnd, before.CurrentPeriodEnd)
}

func (s *Service) emitStatusChange(ctx context.Context, tx *gorm.DB, sub *models.Subscription, previous enums.SubscriptionStatus, evt BillingEvent) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionStatusChanged,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Source:        "stripe",
		OccurredAt:    evt.OccurredAt,
		Data: payloads.SubscriptionStatusChangedEvent{
			SubscriptionID:    sub.SubscriptionID,
			SubscriberID:      sub.SubscriberID,
			CustomerID:        sub.CustomerID,
			PriceID:           sub.PriceID,
			PlanName:          sub.PlanName,
			PreviousStatus:    previous,
			Status:            sub.Status,
			Entitled:          sub.Status.IsEntitled(),
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			CurrentPeriodEnd:  sub.CurrentPeriodEnd,
			ProviderEventID:   evt.ID,
			BillingEventType:  evt.Type,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit subscription status change")
	}
	return nil
}

func persistenceError(err error, msg string) error {
	if db.IsUniqueViolation(err, billing.ConstraintOneEntitled) {
		return pkgerrors.Wrap(pkgerrors.CodeInconsistentState, err, "subscriber already has an entitled subscription")
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, msg)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
