package stripewebhook

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/billing-backend/internal/billing"
	"github.com/angelmondragon/billing-backend/internal/checkout"
	"github.com/angelmondragon/billing-backend/pkg/auth"
	"github.com/angelmondragon/billing-backend/pkg/db"
	"github.com/angelmondragon/billing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/billing-backend/pkg/errors"
	"github.com/angelmondragon/billing-backend/pkg/migrate"
	"github.com/angelmondragon/billing-backend/pkg/outbox"
)

func TestCheckoutWebhookThenSwapFlow(t *testing.T) {
	ctx := context.Background()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migrate.SQLiteSchema(ctx, conn))

	repo := billing.NewRepository(conn)
	provider := newFlowProvider()
	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		BillingRepo:        repo,
		StripeClient:       provider,
		SubscriptionClient: provider,
	})
	require.NoError(t, err)
	reconciler, err := NewService(ServiceParams{
		BillingRepo:       repo,
		StripeClient:      provider,
		TransactionRunner: db.NewFromGorm(conn),
		Outbox:            outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)

	subscriber := auth.Subscriber{ID: uuid.New(), Email: "ada@example.com"}
	input := checkout.StartInput{
		PriceID:    "price_basic",
		SuccessURL: "https://app.example.com/billing/success",
		CancelURL:  "https://app.example.com/billing/cancel",
	}

	started, err := checkoutSvc.Start(ctx, subscriber, input)
	require.NoError(t, err)
	assert.False(t, started.Swapped)
	assert.Equal(t, "cs_1", started.SessionID)
	assert.Equal(t, 1, provider.customersCreated)
	assert.Equal(t, 1, provider.sessions)
	mapping, err := repo.FindLiveCustomer(ctx, subscriber.ID)
	require.NoError(t, err)
	require.NotNil(t, mapping)
	assert.Equal(t, "cus_1", mapping.CustomerID)

	provider.subs["sub_1"] = providerSubscription("sub_1", stripe.SubscriptionStatusActive, "price_basic", subscriber.ID)
	outcome, err := reconciler.HandleEvent(ctx, newEvent(t, "evt_completed", stripe.EventTypeCheckoutSessionCompleted, time.Now(), checkoutSession("sub_1", subscriber.ID)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	record, err := repo.FindSubscriptionByProviderID(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, enums.SubscriptionStatusActive, record.Status)
	assert.Equal(t, "price_basic", record.PriceID)

	_, err = checkoutSvc.Start(ctx, subscriber, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadySubscribed), "got %v", err)

	input.PriceID = "price_pro"
	swapped, err := checkoutSvc.Start(ctx, subscriber, input)
	require.NoError(t, err)
	assert.True(t, swapped.Swapped)
	assert.Equal(t, "sub_1", swapped.SubscriptionID)
	assert.Empty(t, swapped.SessionID)
	assert.Equal(t, 1, provider.sessions)
	assert.Equal(t, 1, provider.customersCreated)
	assert.Equal(t, 1, provider.updates)

	outcome, err = reconciler.HandleEvent(ctx, newEvent(t, "evt_updated", stripe.EventTypeCustomerSubscriptionUpdated, time.Now().Add(time.Second), provider.subs["sub_1"]))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	record, err = repo.FindSubscriptionByProviderID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "price_pro", record.PriceID)
	assert.Equal(t, enums.SubscriptionStatusActive, record.Status)
}

// flowProvider stands in for the customer, price, checkout and subscription
// APIs at once.
type flowProvider struct {
	customers        map[string]*stripe.Customer
	prices           map[string]*stripe.Price
	subs             map[string]*stripe.Subscription
	customersCreated int
	sessions         int
	updates          int
}

func newFlowProvider() *flowProvider {
	recurring := &stripe.PriceRecurring{Interval: stripe.PriceRecurringIntervalMonth}
	return &flowProvider{
		customers: map[string]*stripe.Customer{},
		prices: map[string]*stripe.Price{
			"price_basic": {ID: "price_basic", Active: true, Recurring: recurring, Nickname: "Basic"},
			"price_pro":   {ID: "price_pro", Active: true, Recurring: recurring, Nickname: "Pro"},
		},
		subs: map[string]*stripe.Subscription{},
	}
}

func missing(kind, id string) error {
	return &stripe.Error{HTTPStatusCode: 404, Code: stripe.ErrorCodeResourceMissing, Msg: fmt.Sprintf("No such %s: %s", kind, id)}
}

func (p *flowProvider) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	if cust, ok := p.customers[id]; ok {
		return cust, nil
	}
	return nil, missing("customer", id)
}

func (p *flowProvider) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	p.customersCreated++
	cust := &stripe.Customer{ID: fmt.Sprintf("cus_%d", p.customersCreated)}
	p.customers[cust.ID] = cust
	return cust, nil
}

func (p *flowProvider) DeleteCustomer(ctx context.Context, id string) error {
	delete(p.customers, id)
	return nil
}

func (p *flowProvider) GetPrice(ctx context.Context, id string) (*stripe.Price, error) {
	if price, ok := p.prices[id]; ok {
		return price, nil
	}
	return nil, missing("price", id)
}

func (p *flowProvider) CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	p.sessions++
	id := fmt.Sprintf("cs_%d", p.sessions)
	return &stripe.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (p *flowProvider) Get(ctx context.Context, id string) (*stripe.Subscription, error) {
	if sub, ok := p.subs[id]; ok {
		return sub, nil
	}
	return nil, missing("subscription", id)
}

func (p *flowProvider) Update(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	p.updates++
	sub, ok := p.subs[id]
	if !ok {
		return nil, missing("subscription", id)
	}
	updated := *sub
	item := *sub.Items.Data[0]
	if len(params.Items) == 1 && params.Items[0].Price != nil {
		item.Price = p.prices[*params.Items[0].Price]
	}
	updated.Items = &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{&item}}
	p.subs[id] = &updated
	return &updated, nil
}
