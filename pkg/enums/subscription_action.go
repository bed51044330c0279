package enums

import (
	"fmt"
	"strings"
)

// SubscriptionAction is a caller-requested change to an existing subscription.
type SubscriptionAction string

const (
	SubscriptionActionUpdate     SubscriptionAction = "update"
	SubscriptionActionCancel     SubscriptionAction = "cancel"
	SubscriptionActionReactivate SubscriptionAction = "reactivate"
)

var validSubscriptionActions = []SubscriptionAction{
	SubscriptionActionUpdate,
	SubscriptionActionCancel,
	SubscriptionActionReactivate,
}

func (a SubscriptionAction) String() string {
	return string(a)
}

// IsValid reports whether the value is known.
func (a SubscriptionAction) IsValid() bool {
	for _, candidate := range validSubscriptionActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseSubscriptionAction converts raw input into a SubscriptionAction.
func ParseSubscriptionAction(value string) (SubscriptionAction, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validSubscriptionActions {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription action %q", value)
}
