package stripewebhook

import "github.com/angelmondragon/billing-backend/pkg/enums"

// Outcome reports what reconciliation did with an event.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeStale     Outcome = "stale"
	OutcomeTerminal  Outcome = "terminal"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

type transition struct {
	// createWhenMissing upserts a record when none matches the subscription id.
	createWhenMissing bool
	// syncSnapshot copies price, periods and the cancel flag from the snapshot.
	syncSnapshot bool
	// fixed is the target status; empty means the snapshot status.
	fixed enums.SubscriptionStatus
}

var transitions = map[enums.BillingEventType]transition{
	enums.BillingEventCheckoutCompleted:   {createWhenMissing: true, syncSnapshot: true},
	enums.BillingEventSubscriptionUpdated: {syncSnapshot: true},
	enums.BillingEventSubscriptionDeleted: {syncSnapshot: true, fixed: enums.SubscriptionStatusCancelled},
	enums.BillingEventPaymentSucceeded:    {fixed: enums.SubscriptionStatusActive},
	enums.BillingEventPaymentFailed:       {fixed: enums.SubscriptionStatusPastDue},
}

func (t transition) target(evt BillingEvent) enums.SubscriptionStatus {
	if t.fixed != "" {
		return t.fixed
	}
	if evt.Snapshot == nil {
		return ""
	}
	return readSnapshot(evt.Snapshot).status
}
