package outbox

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/billing-backend/pkg/db/models"
	"github.com/angelmondragon/billing-backend/pkg/enums"
	"github.com/angelmondragon/billing-backend/pkg/outbox/payloads"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}))
	return conn
}

func TestEmitWritesEnvelope(t *testing.T) {
	conn := openDB(t)
	svc := NewService(NewRepository(conn), nil)
	aggregate := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventSubscriptionStatusChanged,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   aggregate,
			Source:        "webhook",
			Data: payloads.SubscriptionStatusChangedEvent{
				SubscriptionID: "sub_1",
				Status:         enums.SubscriptionStatusActive,
				Entitled:       true,
			},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, aggregate, rows[0].AggregateID)
	assert.Equal(t, enums.EventSubscriptionStatusChanged, rows[0].EventType)

	env, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, 1, env.Version)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "webhook", env.Source)
	assert.Contains(t, string(env.Data), `"subscription_id":"sub_1"`)
}

func TestEmitRequiresTransactionAndKnownTypes(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventSubscriptionStatusChanged, AggregateType: enums.AggregateSubscription})
	require.Error(t, err)

	conn := openDB(t)
	err = svc.Emit(context.Background(), conn, DomainEvent{EventType: "order_created", AggregateType: enums.AggregateSubscription})
	require.Error(t, err)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := openDB(t)
	repo := NewRepository(conn)

	older := models.OutboxEvent{EventType: enums.EventSubscriptionStatusChanged, AggregateType: enums.AggregateSubscription, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: time.Now().Add(-time.Minute)}
	newer := models.OutboxEvent{EventType: enums.EventSubscriptionStatusChanged, AggregateType: enums.AggregateSubscription, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	exhausted := models.OutboxEvent{EventType: enums.EventSubscriptionStatusChanged, AggregateType: enums.AggregateSubscription, AggregateID: uuid.New(), Payload: []byte(`{}`), AttemptCount: 3}
	require.NoError(t, repo.Insert(conn, older))
	require.NoError(t, repo.Insert(conn, newer))
	require.NoError(t, repo.Insert(conn, exhausted))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, older.AggregateID, rows[0].AggregateID)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(conn, rows[1].ID, errors.New("pubsub unavailable")))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "pubsub unavailable", *rows[0].LastError)
}
