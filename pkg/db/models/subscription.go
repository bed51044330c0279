package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/billing-backend/pkg/enums"
)

// Subscription persists Stripe subscription state per subscriber. Status and
// period fields are written only by webhook reconciliation.
type Subscription struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	SubscriptionID     string                   `gorm:"column:subscription_id;not null;uniqueIndex:ux_subscriptions_subscription_id"`
	SubscriberID       uuid.UUID                `gorm:"column:subscriber_id;type:uuid;not null;index"`
	CustomerID         string                   `gorm:"column:customer_id;not null"`
	PriceID            string                   `gorm:"column:price_id;not null"`
	PlanName           string                   `gorm:"column:plan_name"`
	Status             enums.SubscriptionStatus `gorm:"column:status;type:text;not null;default:'incomplete'"`
	CancelAtPeriodEnd  bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CurrentPeriodStart *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd   *time.Time               `gorm:"column:current_period_end"`
	LastEventAt        *time.Time               `gorm:"column:last_event_at"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
