package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/billing-backend/pkg/db/models"
	"github.com/angelmondragon/billing-backend/pkg/enums"
)

// Constraint names backing the store-level billing invariants.
const (
	ConstraintLiveCustomer        = "ux_billing_customers_live"
	ConstraintOneEntitled         = "ux_subscriptions_one_entitled"
	ConstraintSubscriptionUnique  = "ux_subscriptions_subscription_id"
	defaultReconciliationPageSize = 100
)

// Repository handles billing persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindLiveCustomer(ctx context.Context, subscriberID uuid.UUID) (*models.BillingCustomer, error)
	CreateCustomer(ctx context.Context, customer *models.BillingCustomer) error
	SoftDeleteCustomer(ctx context.Context, id uuid.UUID) error
	FindEntitledSubscription(ctx context.Context, subscriberID uuid.UUID) (*models.Subscription, error)
	FindSubscriptionByProviderID(ctx context.Context, subscriptionID string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	ListSubscriptionsForReconciliation(ctx context.Context, limit int) ([]models.Subscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindLiveCustomer(ctx context.Context, subscriberID uuid.UUID) (*models.BillingCustomer, error) {
	var customer models.BillingCustomer
	if err := r.db.WithContext(ctx).
		Where("subscriber_id = ?", subscriberID).
		Order("created_at DESC").
		First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

func (r *repository) CreateCustomer(ctx context.Context, customer *models.BillingCustomer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

// SoftDeleteCustomer marks the mapping deleted; it no longer counts as live.
func (r *repository) SoftDeleteCustomer(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.BillingCustomer{}, "id = ?", id).Error
}

func (r *repository) FindEntitledSubscription(ctx context.Context, subscriberID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("subscriber_id = ? AND status IN ?", subscriberID, enums.EntitledSubscriptionStatuses).
		Order("updated_at DESC").
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindSubscriptionByProviderID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// UpsertSubscription inserts the record or overwrites the row sharing its
// provider subscription id.
func (r *repository) UpsertSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "subscription_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"subscriber_id",
				"customer_id",
				"price_id",
				"plan_name",
				"status",
				"cancel_at_period_end",
				"current_period_start",
				"current_period_end",
				"last_event_at",
				"updated_at",
			}),
		}).
		Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

// ListSubscriptionsForReconciliation returns non-terminal records, least
// recently touched first.
func (r *repository) ListSubscriptionsForReconciliation(ctx context.Context, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = defaultReconciliationPageSize
	}
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("status <> ?", enums.SubscriptionStatusCancelled).
		Order("updated_at ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}
