package checkout

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/billing-backend/internal/billing"
	"github.com/angelmondragon/billing-backend/pkg/auth"
	"github.com/angelmondragon/billing-backend/pkg/db/models"
	"github.com/angelmondragon/billing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/billing-backend/pkg/errors"
	"github.com/angelmondragon/billing-backend/pkg/migrate"
)

var validInput = StartInput{
	PriceID:    "price_pro",
	SuccessURL: "https://app.example.com/billing/success",
	CancelURL:  "https://app.example.com/billing/cancel",
}

func TestStartCreatesCustomerAndSession(t *testing.T) {
	repo := newRepo(t)
	provider := newStubCheckoutClient()
	svc := newService(t, repo, provider, &stubSubscriptionClient{})
	subscriber := auth.Subscriber{ID: uuid.New(), Email: "sam@example.com"}

	result, err := svc.Start(context.Background(), subscriber, validInput)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", result.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_1", result.URL)
	assert.False(t, result.Swapped)

	mapping, err := repo.FindLiveCustomer(context.Background(), subscriber.ID)
	require.NoError(t, err)
	require.NotNil(t, mapping)
	assert.Equal(t, "cus_1", mapping.CustomerID)
	assert.Equal(t, 1, provider.customersCreated)
	assert.Equal(t, subscriber.ID.String(), provider.lastCustomer.Metadata[MetadataSubscriberID])
	assert.Equal(t, "sam@example.com", *provider.lastCustomer.Email)

	session := provider.lastSession
	require.NotNil(t, session)
	assert.Equal(t, "subscription", *session.Mode)
	assert.Equal(t, "cus_1", *session.Customer)
	assert.Equal(t, "Pro Monthly", session.Metadata[MetadataPlanName])
	assert.Equal(t, subscriber.ID.String(), session.SubscriptionData.Metadata[MetadataSubscriberID])

	// A second checkout reuses the live mapping.
	_, err = svc.Start(context.Background(), subscriber, validInput)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.customersCreated)
}

func TestStartRejectsInvalidInputBeforeProviderCalls(t *testing.T) {
	repo := newRepo(t)
	provider := newStubCheckoutClient()
	svc := newService(t, repo, provider, &stubSubscriptionClient{})

	_, err := svc.Start(context.Background(), auth.Subscriber{ID: uuid.New()}, StartInput{PriceID: "price_pro", SuccessURL: "/relative"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
	assert.Equal(t, 0, provider.calls)

	_, err = svc.Start(context.Background(), auth.Subscriber{}, validInput)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized), "got %v", err)
}

func TestStartAlreadySubscribedToSamePlan(t *testing.T) {
	repo := newRepo(t)
	provider := newStubCheckoutClient()
	svc := newService(t, repo, provider, &stubSubscriptionClient{})
	subscriber := auth.Subscriber{ID: uuid.New()}
	seedSubscription(t, repo, subscriber.ID, "sub_1", "price_pro")

	_, err := svc.Start(context.Background(), subscriber, validInput)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadySubscribed), "got %v", err)
	assert.Nil(t, provider.lastSession)
}

func TestStartSwapsPlanForExistingSubscription(t *testing.T) {
	repo := newRepo(t)
	provider := newStubCheckoutClient()
	subs := &stubSubscriptionClient{live: &stripe.Subscription{
		ID:    "sub_1",
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{ID: "si_1", Price: &stripe.Price{ID: "price_basic"}}}},
	}}
	svc := newService(t, repo, provider, subs)
	subscriber := auth.Subscriber{ID: uuid.New()}
	seedSubscription(t, repo, subscriber.ID, "sub_1", "price_basic")

	result, err := svc.Start(context.Background(), subscriber, validInput)
	require.NoError(t, err)
	assert.True(t, result.Swapped)
	assert.Equal(t, "sub_1", result.SubscriptionID)
	assert.Empty(t, result.SessionID)
	assert.Nil(t, provider.lastSession)
	require.NotNil(t, subs.lastParams)
	assert.Equal(t, "price_pro", *subs.lastParams.Items[0].Price)
}

func TestStartInvalidPlan(t *testing.T) {
	cases := map[string]*stripe.Price{
		"inactive": {ID: "price_pro", Active: false, Recurring: &stripe.PriceRecurring{}},
		"one time":  {ID: "price_pro", Active: true},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			provider := newStubCheckoutClient()
			provider.price = p
			svc := newService(t, repo, provider, &stubSubscriptionClient{})

			_, err := svc.Start(context.Background(), auth.Subscriber{ID: uuid.New()}, validInput)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidPlan), "got %v", err)
			assert.Nil(t, provider.lastSession)
		})
	}

	repo := newRepo(t)
	provider := newStubCheckoutClient()
	provider.priceErr = &stripe.Error{Code: stripe.ErrorCodeResourceMissing, Msg: "No such price"}
	svc := newService(t, repo, provider, &stubSubscriptionClient{})
	_, err := svc.Start(context.Background(), auth.Subscriber{ID: uuid.New()}, validInput)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidPlan), "got %v", err)
}

func TestStartReplacesCustomerMissingAtProvider(t *testing.T) {
	repo := newRepo(t)
	provider := newStubCheckoutClient()
	svc := newService(t, repo, provider, &stubSubscriptionClient{})
	subscriber := auth.Subscriber{ID: uuid.New()}
	require.NoError(t, repo.CreateCustomer(context.Background(), &models.BillingCustomer{SubscriberID: subscriber.ID, CustomerID: "cus_gone"}))
	provider.deletedCustomers["cus_gone"] = true

	_, err := svc.Start(context.Background(), subscriber, validInput)
	require.NoError(t, err)

	mapping, err := repo.FindLiveCustomer(context.Background(), subscriber.ID)
	require.NoError(t, err)
	require.NotNil(t, mapping)
	assert.Equal(t, "cus_1", mapping.CustomerID)
	assert.Equal(t, "cus_1", *provider.lastSession.Customer)
}

func TestStartReusesWinnerOnConcurrentCustomerCreate(t *testing.T) {
	repo := newRepo(t)
	provider := newStubCheckoutClient()
	subscriber := auth.Subscriber{ID: uuid.New()}
	provider.onCreateCustomer = func() {
		require.NoError(t, repo.CreateCustomer(context.Background(), &models.BillingCustomer{SubscriberID: subscriber.ID, CustomerID: "cus_winner"}))
	}
	svc := newService(t, repo, provider, &stubSubscriptionClient{})

	_, err := svc.Start(context.Background(), subscriber, validInput)
	require.NoError(t, err)
	assert.Equal(t, []string{"cus_1"}, provider.deletedIDs)
	assert.Equal(t, "cus_winner", *provider.lastSession.Customer)
}

func TestStartCompensatesWhenMappingCannotBePersisted(t *testing.T) {
	provider := newStubCheckoutClient()
	repo := &failingCustomerRepo{Repository: newRepo(t), err: errors.New("connection reset")}
	svc := newService(t, repo, provider, &stubSubscriptionClient{})

	_, err := svc.Start(context.Background(), auth.Subscriber{ID: uuid.New()}, validInput)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInconsistentState), "got %v", err)
	assert.Equal(t, []string{"cus_1"}, provider.deletedIDs)
	assert.Nil(t, provider.lastSession)

	provider.deleteErr = errors.New("stripe down")
	_, err = svc.Start(context.Background(), auth.Subscriber{ID: uuid.New()}, validInput)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInconsistentState), "got %v", err)
}

func TestPlanName(t *testing.T) {
	assert.Equal(t, "Pro", PlanName(&stripe.Price{ID: "price_1", Nickname: "Pro", LookupKey: "pro"}))
	assert.Equal(t, "pro", PlanName(&stripe.Price{ID: "price_1", LookupKey: "pro"}))
	assert.Equal(t, "price_1", PlanName(&stripe.Price{ID: "price_1"}))
}

func newRepo(t *testing.T) billing.Repository {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migrate.SQLiteSchema(context.Background(), conn))
	return billing.NewRepository(conn)
}

func newService(t *testing.T, repo billing.Repository, provider StripeCheckoutClient, subs *stubSubscriptionClient) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{BillingRepo: repo, StripeClient: provider, SubscriptionClient: subs})
	require.NoError(t, err)
	return svc
}

func seedSubscription(t *testing.T, repo billing.Repository, subscriberID uuid.UUID, subscriptionID, priceID string) {
	t.Helper()
	require.NoError(t, repo.UpsertSubscription(context.Background(), &models.Subscription{
		SubscriptionID: subscriptionID,
		SubscriberID:   subscriberID,
		CustomerID:     "cus_seed",
		PriceID:        priceID,
		Status:         enums.SubscriptionStatusActive,
	}))
}

type failingCustomerRepo struct {
	billing.Repository
	err error
}

func (f *failingCustomerRepo) CreateCustomer(ctx context.Context, customer *models.BillingCustomer) error {
	return f.err
}

type stubCheckoutClient struct {
	price            *stripe.Price
	priceErr         error
	deleteErr        error
	deletedCustomers map[string]bool
	onCreateCustomer func()

	calls            int
	customersCreated int
	deletedIDs       []string
	lastCustomer     *stripe.CustomerParams
	lastSession      *stripe.CheckoutSessionParams
}

func newStubCheckoutClient() *stubCheckoutClient {
	return &stubCheckoutClient{
		price: &stripe.Price{
			ID:        "price_pro",
			Active:    true,
			Nickname:  "Pro Monthly",
			Recurring: &stripe.PriceRecurring{Interval: stripe.PriceRecurringIntervalMonth},
		},
		deletedCustomers: map[string]bool{},
	}
}

func (s *stubCheckoutClient) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	s.calls++
	if s.deletedCustomers[id] {
		return &stripe.Customer{ID: id, Deleted: true}, nil
	}
	return &stripe.Customer{ID: id}, nil
}

func (s *stubCheckoutClient) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	s.calls++
	s.customersCreated++
	s.lastCustomer = params
	if s.onCreateCustomer != nil {
		s.onCreateCustomer()
	}
	return &stripe.Customer{ID: fmt.Sprintf("cus_%d", s.customersCreated)}, nil
}

func (s *stubCheckoutClient) DeleteCustomer(ctx context.Context, id string) error {
	s.calls++
	s.deletedIDs = append(s.deletedIDs, id)
	return s.deleteErr
}

func (s *stubCheckoutClient) GetPrice(ctx context.Context, id string) (*stripe.Price, error) {
	s.calls++
	if s.priceErr != nil {
		return nil, s.priceErr
	}
	return s.price, nil
}

func (s *stubCheckoutClient) CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.calls++
	s.lastSession = params
	return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil
}

type stubSubscriptionClient struct {
	live       *stripe.Subscription
	lastParams *stripe.SubscriptionParams
}

func (s *stubSubscriptionClient) Get(ctx context.Context, id string) (*stripe.Subscription, error) {
	return s.live, nil
}

func (s *stubSubscriptionClient) Update(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	s.lastParams = params
	return &stripe.Subscription{ID: id}, nil
}
