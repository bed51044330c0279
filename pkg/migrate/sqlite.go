package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/billing-backend/pkg/db/models"
)

// sqliteIndexes mirror the partial unique indexes of the goose migrations.
var sqliteIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_billing_customers_live ON billing_customers (subscriber_id) WHERE deleted_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_subscriptions_one_entitled ON subscriptions (subscriber_id) WHERE status IN ('active', 'trialing')`,
}

// SQLiteSchema builds the billing schema on a SQLite connection for local
// development and tests.
func SQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	tx := conn.WithContext(ctx)
	if err := tx.AutoMigrate(&models.BillingCustomer{}, &models.Subscription{}, &models.OutboxEvent{}); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	for _, stmt := range sqliteIndexes {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
