package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/billing-backend/pkg/enums"
)

// SubscriptionStatusChangedEvent is emitted whenever reconciliation moves a
// subscription record to a different status.
type SubscriptionStatusChangedEvent struct {
	SubscriptionID    string                   `json:"subscription_id"`
	SubscriberID      uuid.UUID                `json:"subscriber_id"`
	CustomerID        string                   `json:"customer_id"`
	PriceID           string                   `json:"price_id"`
	PlanName          string                   `json:"plan_name,omitempty"`
	PreviousStatus    enums.SubscriptionStatus `json:"previous_status,omitempty"`
	Status            enums.SubscriptionStatus `json:"status"`
	Entitled          bool                     `json:"entitled"`
	CancelAtPeriodEnd bool                     `json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time               `json:"current_period_end,omitempty"`
	ProviderEventID   string                   `json:"provider_event_id,omitempty"`
	BillingEventType  enums.BillingEventType   `json:"billing_event_type"`
}
