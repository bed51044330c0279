package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/billing-backend/pkg/db"
	"github.com/angelmondragon/billing-backend/pkg/db/models"
	"github.com/angelmondragon/billing-backend/pkg/enums"
	"github.com/angelmondragon/billing-backend/pkg/migrate"
)

func newTestRepo(t *testing.T) (Repository, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migrate.SQLiteSchema(context.Background(), conn))
	return NewRepository(conn), conn
}

func TestLiveCustomerLifecycle(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	subscriber := uuid.New()

	found, err := repo.FindLiveCustomer(ctx, subscriber)
	require.NoError(t, err)
	assert.Nil(t, found)

	first := &models.BillingCustomer{SubscriberID: subscriber, CustomerID: "cus_1"}
	require.NoError(t, repo.CreateCustomer(ctx, first))

	dup := &models.BillingCustomer{SubscriberID: subscriber, CustomerID: "cus_2"}
	err = repo.CreateCustomer(ctx, dup)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ConstraintLiveCustomer))

	require.NoError(t, repo.SoftDeleteCustomer(ctx, first.ID))
	found, err = repo.FindLiveCustomer(ctx, subscriber)
	require.NoError(t, err)
	assert.Nil(t, found)

	replacement := &models.BillingCustomer{SubscriberID: subscriber, CustomerID: "cus_3"}
	require.NoError(t, repo.CreateCustomer(ctx, replacement))
	found, err = repo.FindLiveCustomer(ctx, subscriber)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "cus_3", found.CustomerID)
}

func TestOneEntitledSubscriptionPerSubscriber(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	subscriber := uuid.New()

	require.NoError(t, repo.UpsertSubscription(ctx, &models.Subscription{
		SubscriptionID: "sub_1", SubscriberID: subscriber, CustomerID: "cus_1", PriceID: "price_a", Status: enums.SubscriptionStatusActive,
	}))
	err := repo.UpsertSubscription(ctx, &models.Subscription{
		SubscriptionID: "sub_2", SubscriberID: subscriber, CustomerID: "cus_1", PriceID: "price_b", Status: enums.SubscriptionStatusTrialing,
	})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ConstraintOneEntitled))

	require.NoError(t, repo.UpsertSubscription(ctx, &models.Subscription{
		SubscriptionID: "sub_3", SubscriberID: subscriber, CustomerID: "cus_1", PriceID: "price_b", Status: enums.SubscriptionStatusCancelled,
	}))

	entitled, err := repo.FindEntitledSubscription(ctx, subscriber)
	require.NoError(t, err)
	require.NotNil(t, entitled)
	assert.Equal(t, "sub_1", entitled.SubscriptionID)
}

func TestUpsertSubscriptionOverwritesByProviderID(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	subscriber := uuid.New()

	require.NoError(t, repo.UpsertSubscription(ctx, &models.Subscription{
		SubscriptionID: "sub_1", SubscriberID: subscriber, CustomerID: "cus_1", PriceID: "price_a", Status: enums.SubscriptionStatusIncomplete,
	}))
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.UpsertSubscription(ctx, &models.Subscription{
		SubscriptionID: "sub_1", SubscriberID: subscriber, CustomerID: "cus_1", PriceID: "price_b", Status: enums.SubscriptionStatusActive, LastEventAt: &now,
	}))

	sub, err := repo.FindSubscriptionByProviderID(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "price_b", sub.PriceID)
	assert.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.LastEventAt)

	missing, err := repo.FindSubscriptionByProviderID(ctx, "sub_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListSubscriptionsForReconciliation(t *testing.T) {
	repo, conn := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertSubscription(ctx, &models.Subscription{SubscriptionID: "sub_new", SubscriberID: uuid.New(), CustomerID: "c", PriceID: "p", Status: enums.SubscriptionStatusActive}))
	require.NoError(t, repo.UpsertSubscription(ctx, &models.Subscription{SubscriptionID: "sub_old", SubscriberID: uuid.New(), CustomerID: "c", PriceID: "p", Status: enums.SubscriptionStatusPastDue}))
	require.NoError(t, repo.UpsertSubscription(ctx, &models.Subscription{SubscriptionID: "sub_done", SubscriberID: uuid.New(), CustomerID: "c", PriceID: "p", Status: enums.SubscriptionStatusCancelled}))
	require.NoError(t, conn.Model(&models.Subscription{}).Where("subscription_id = ?", "sub_old").UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)

	subs, err := repo.ListSubscriptionsForReconciliation(ctx, 10)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "sub_old", subs[0].SubscriptionID)
	assert.Equal(t, "sub_new", subs[1].SubscriptionID)

	subs, err = repo.ListSubscriptionsForReconciliation(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}
