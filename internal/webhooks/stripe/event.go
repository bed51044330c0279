package stripewebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/billing-backend/internal/checkout"
	"github.com/angelmondragon/billing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/billing-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/billing-backend/pkg/stripe"
)

// BillingEvent is a provider event normalized for reconciliation.
type BillingEvent struct {
	ID             string
	Type           enums.BillingEventType
	SubscriptionID string
	CustomerID     string
	SubscriberID   uuid.UUID
	PlanName       string
	OccurredAt     time.Time
	Snapshot       *stripe.Subscription
	// Resync events carry live provider state stamped with the local clock.
	// They neither age out nor advance last_event_at.
	Resync bool
}

type invoiceRef struct {
	ID           string          `json:"id"`
	Customer     json.RawMessage `json:"customer"`
	Subscription json.RawMessage `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription json.RawMessage `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// translate maps a verified Stripe event onto a BillingEvent. A nil event
// with a nil error means the event is not relevant to billing state.
func (s *Service) translate(ctx context.Context, event *stripe.Event) (*BillingEvent, error) {
	if event == nil || event.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	occurredAt := time.Unix(event.Created, 0).UTC()

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		if sess.Mode != stripe.CheckoutSessionModeSubscription || sess.Subscription == nil || sess.Subscription.ID == "" {
			return nil, nil
		}
		snapshot, err := s.stripe.Get(ctx, sess.Subscription.ID)
		if err != nil {
			return nil, pkgstripe.ProviderError(err, "failed to retrieve subscription")
		}
		evt := &BillingEvent{
			ID:             event.ID,
			Type:           enums.BillingEventCheckoutCompleted,
			SubscriptionID: sess.Subscription.ID,
			OccurredAt:     occurredAt,
			Snapshot:       snapshot,
			SubscriberID:   subscriberFromMetadata(sess.Metadata),
			PlanName:       strings.TrimSpace(sess.Metadata[checkout.MetadataPlanName]),
		}
		if sess.Customer != nil {
			evt.CustomerID = sess.Customer.ID
		}
		fillFromSnapshot(evt)
		return evt, nil

	case stripe.EventTypeCustomerSubscriptionUpdated, stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
		}
		eventType := enums.BillingEventSubscriptionUpdated
		if event.Type == stripe.EventTypeCustomerSubscriptionDeleted {
			eventType = enums.BillingEventSubscriptionDeleted
		}
		evt := &BillingEvent{
			ID:             event.ID,
			Type:           eventType,
			SubscriptionID: sub.ID,
			OccurredAt:     occurredAt,
			Snapshot:       &sub,
		}
		fillFromSnapshot(evt)
		return evt, nil

	case stripe.EventTypeInvoicePaymentSucceeded, stripe.EventTypeInvoicePaymentFailed:
		var inv invoiceRef
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice")
		}
		subscriptionID := inv.subscriptionID()
		if subscriptionID == "" {
			return nil, nil
		}
		eventType := enums.BillingEventPaymentSucceeded
		if event.Type == stripe.EventTypeInvoicePaymentFailed {
			eventType = enums.BillingEventPaymentFailed
		}
		return &BillingEvent{
			ID:             event.ID,
			Type:           eventType,
			SubscriptionID: subscriptionID,
			CustomerID:     expandableID(inv.Customer),
			OccurredAt:     occurredAt,
		}, nil
	}
	return nil, nil
}

func (inv invoiceRef) subscriptionID() string {
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		if id := expandableID(inv.Parent.SubscriptionDetails.Subscription); id != "" {
			return id
		}
	}
	return expandableID(inv.Subscription)
}

// expandableID reads a Stripe expandable field, which is either an id string
// or an object with an id.
func expandableID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

func fillFromSnapshot(evt *BillingEvent) {
	sub := evt.Snapshot
	if sub == nil {
		return
	}
	if evt.SubscriptionID == "" {
		evt.SubscriptionID = sub.ID
	}
	if evt.CustomerID == "" && sub.Customer != nil {
		evt.CustomerID = sub.Customer.ID
	}
	if evt.SubscriberID == uuid.Nil {
		evt.SubscriberID = subscriberFromMetadata(sub.Metadata)
	}
	if evt.PlanName == "" {
		evt.PlanName = strings.TrimSpace(sub.Metadata[checkout.MetadataPlanName])
	}
}

func subscriberFromMetadata(metadata map[string]string) uuid.UUID {
	raw := strings.TrimSpace(metadata[checkout.MetadataSubscriberID])
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}

type snapshotFields struct {
	status             enums.SubscriptionStatus
	priceID            string
	planName           string
	cancelAtPeriodEnd  bool
	currentPeriodStart *time.Time
	currentPeriodEnd   *time.Time
}

func readSnapshot(sub *stripe.Subscription) snapshotFields {
	fields := snapshotFields{
		status:            enums.SubscriptionStatusFromProvider(string(sub.Status)),
		cancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		item := sub.Items.Data[0]
		if item.Price != nil {
			fields.priceID = item.Price.ID
			fields.planName = checkout.PlanName(item.Price)
		}
		fields.currentPeriodStart = pkgstripe.UnixTime(item.CurrentPeriodStart)
		fields.currentPeriodEnd = pkgstripe.UnixTime(item.CurrentPeriodEnd)
	}
	return fields
}
