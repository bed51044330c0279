package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BillingCustomer maps a subscriber to their Stripe customer. At most one live
// (non soft-deleted) row exists per subscriber.
type BillingCustomer struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	SubscriberID uuid.UUID      `gorm:"column:subscriber_id;type:uuid;not null;index"`
	CustomerID   string         `gorm:"column:customer_id;not null"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (BillingCustomer) TableName() string {
	return "billing_customers"
}

func (c *BillingCustomer) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
