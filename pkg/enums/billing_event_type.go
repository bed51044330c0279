package enums

import "fmt"

// BillingEventType is the normalized kind of a provider webhook event.
type BillingEventType string

const (
	BillingEventCheckoutCompleted   BillingEventType = "checkout_completed"
	BillingEventSubscriptionUpdated BillingEventType = "subscription_updated"
	BillingEventSubscriptionDeleted BillingEventType = "subscription_deleted"
	BillingEventPaymentSucceeded    BillingEventType = "payment_succeeded"
	BillingEventPaymentFailed       BillingEventType = "payment_failed"
)

var validBillingEventTypes = []BillingEventType{
	BillingEventCheckoutCompleted,
	BillingEventSubscriptionUpdated,
	BillingEventSubscriptionDeleted,
	BillingEventPaymentSucceeded,
	BillingEventPaymentFailed,
}

func (e BillingEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is known.
func (e BillingEventType) IsValid() bool {
	for _, candidate := range validBillingEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseBillingEventType converts raw input into a BillingEventType.
func ParseBillingEventType(value string) (BillingEventType, error) {
	for _, candidate := range validBillingEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing event type %q", value)
}
