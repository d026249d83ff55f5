package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/proshotai/proshot/app/models"
	"github.com/proshotai/proshot/internal/pkg/stripe"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.CreditTransaction{},
		&models.BillingWebhookEvent{},
	))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, customerID string, creditBalance int) *models.User {
	t.Helper()
	user := &models.User{
		Name:             "Testnutzer",
		Email:            fmt.Sprintf("%s@proshot.ai", customerID),
		StripeCustomerID: customerID,
	}
	require.NoError(t, db.Create(user).Error)
	// Set the balance after create: a zero value in Create would be
	// overridden by the column default.
	require.NoError(t, db.Model(user).UpdateColumn("credits", creditBalance).Error)
	user.Credits = creditBalance
	return user
}

// fakeStripeAPI serves canned subscriptions and products and records cancel
// calls.
type fakeStripeAPI struct {
	subscriptions []stripe.Subscription
	products      map[string]*stripe.Product
	canceled      []string
}

func (f *fakeStripeAPI) ListSubscriptions(_ context.Context, _, status string) ([]stripe.Subscription, error) {
	if status != "active" {
		return f.subscriptions, nil
	}
	var out []stripe.Subscription
	for _, sub := range f.subscriptions {
		if sub.Status == "active" {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *fakeStripeAPI) RetrieveProduct(_ context.Context, productID string) (*stripe.Product, error) {
	if p, ok := f.products[productID]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("produkt %s nicht gefunden", productID)
}

func (f *fakeStripeAPI) CancelSubscription(_ context.Context, subscriptionID string) error {
	f.canceled = append(f.canceled, subscriptionID)
	return nil
}

func subscriptionEventPayload(eventID, eventType string, created time.Time, sub stripe.Subscription) []byte {
	return eventPayload(eventID, eventType, created, sub)
}

func eventPayload(eventID, eventType string, created time.Time, object any) []byte {
	raw, _ := json.Marshal(object)
	payload, _ := json.Marshal(map[string]any{
		"id":      eventID,
		"type":    eventType,
		"created": created.Unix(),
		"data":    map[string]any{"object": json.RawMessage(raw)},
	})
	return payload
}

func activeSubscription(id, customer, product string, created time.Time) stripe.Subscription {
	sub := stripe.Subscription{
		ID:       id,
		Customer: customer,
		Status:   "active",
		Created:  created.Unix(),
	}
	sub.Items.Data = []stripe.SubscriptionItem{{Price: stripe.Price{Product: product}}}
	return sub
}

func productWithCredits(id string, allotment int) *stripe.Product {
	return &stripe.Product{
		ID:       id,
		Name:     "Standart",
		Metadata: map[string]string{"credits": fmt.Sprintf("%d", allotment)},
	}
}

func TestParseEventKinds(t *testing.T) {
	tests := []struct {
		eventType string
		want      EventKind
	}{
		{"customer.created", EventCustomerCreated},
		{"customer.deleted", EventCustomerDeleted},
		{"customer.subscription.created", EventSubscriptionCreated},
		{"customer.subscription.updated", EventSubscriptionUpdated},
		{"customer.subscription.deleted", EventSubscriptionDeleted},
		{"checkout.session.completed", EventCheckoutCompleted},
		{"invoice.paid", EventUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			var object any = stripe.Customer{ID: "cus_1"}
			switch tt.want {
			case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
				object = activeSubscription("sub_1", "cus_1", "prod_1", time.Now())
			case EventCheckoutCompleted:
				object = stripe.CheckoutSession{ID: "cs_1", Customer: "cus_1"}
			}
			event, err := ParseEvent(eventPayload("evt_1", tt.eventType, time.Now(), object))
			require.NoError(t, err)
			assert.Equal(t, tt.want, event.Kind)
		})
	}
}

func TestParseEventRejectsGarbage(t *testing.T) {
	_, err := ParseEvent([]byte("kein json"))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	_, err = ParseEvent([]byte(`{"id":"evt_1"}`))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestSubscriptionUpdateOverwritesBalance(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "cus_1", 87)
	api := &fakeStripeAPI{products: map[string]*stripe.Product{"prod_std": productWithCredits("prod_std", 100)}}
	svc := NewServiceFromDB(db, api)

	sub := activeSubscription("sub_1", "cus_1", "prod_std", time.Now())
	applied, err := svc.ProcessWebhook(context.Background(),
		subscriptionEventPayload("evt_1", "customer.subscription.updated", time.Now(), sub), true)
	require.NoError(t, err)
	assert.True(t, applied)

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	assert.Equal(t, "sub_1", got.Plan)
	// Reset semantics: the leftover balance of 87 is replaced, not added to.
	assert.Equal(t, 100, got.Credits)
	assert.False(t, got.IsCanceled)
}

func TestStaleEventIsSkipped(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "cus_1", 5)
	api := &fakeStripeAPI{products: map[string]*stripe.Product{
		"prod_basic": productWithCredits("prod_basic", 30),
		"prod_prem":  productWithCredits("prod_prem", 500),
	}}
	svc := NewServiceFromDB(db, api)

	now := time.Now()
	newer := activeSubscription("sub_prem", "cus_1", "prod_prem", now)
	_, err := svc.ProcessWebhook(context.Background(),
		subscriptionEventPayload("evt_2", "customer.subscription.updated", now, newer), true)
	require.NoError(t, err)

	// A delayed delivery of an older snapshot must not roll the plan back.
	older := activeSubscription("sub_basic", "cus_1", "prod_basic", now.Add(-time.Hour))
	_, err = svc.ProcessWebhook(context.Background(),
		subscriptionEventPayload("evt_1", "customer.subscription.created", now.Add(-time.Hour), older), true)
	require.NoError(t, err)

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	assert.Equal(t, "sub_prem", got.Plan)
	assert.Equal(t, 500, got.Credits)
}

func TestDuplicateEventAppliedOnce(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "cus_1", 0)
	api := &fakeStripeAPI{}
	svc := NewServiceFromDB(db, api)

	session := stripe.CheckoutSession{
		ID:       "cs_1",
		Customer: "cus_1",
		Mode:     "payment",
		Metadata: map[string]string{"credits": "50", "package_name": "Standard"},
	}
	payload := eventPayload("evt_dup", "checkout.session.completed", time.Now(), session)

	applied, err := svc.ProcessWebhook(context.Background(), payload, true)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = svc.ProcessWebhook(context.Background(), payload, true)
	require.NoError(t, err)
	assert.False(t, applied)

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	assert.Equal(t, 50, got.Credits)

	var entries int64
	require.NoError(t, db.Model(&models.CreditTransaction{}).Where("user_id = ?", user.ID).Count(&entries).Error)
	assert.EqualValues(t, 1, entries)
}

func TestRedeliveryDuringProcessingIsNotApplied(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "cus_1", 0)
	api := &fakeStripeAPI{}
	svc := NewServiceFromDB(db, api)

	session := stripe.CheckoutSession{
		ID:       "cs_1",
		Customer: "cus_1",
		Mode:     "payment",
		Metadata: map[string]string{"credits": "50", "package_name": "Standard"},
	}
	payload := eventPayload("evt_race", "checkout.session.completed", time.Now(), session)

	// The row exists but processed_at is still unset, as if a first
	// delivery were mid-flight. The redelivery must not apply the grant
	// a second time.
	require.NoError(t, db.Create(&models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: "evt_race",
		EventType:       "checkout.session.completed",
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	}).Error)

	applied, err := svc.ProcessWebhook(context.Background(), payload, true)
	require.NoError(t, err)
	assert.False(t, applied)

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	assert.Equal(t, 0, got.Credits)

	var entries int64
	require.NoError(t, db.Model(&models.CreditTransaction{}).Where("user_id = ?", user.ID).Count(&entries).Error)
	assert.Zero(t, entries)
}

func TestInvalidSignatureIsStoredButNotApplied(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "cus_1", 0)
	svc := NewServiceFromDB(db, &fakeStripeAPI{})

	session := stripe.CheckoutSession{
		ID:       "cs_1",
		Customer: "cus_1",
		Mode:     "payment",
		Metadata: map[string]string{"credits": "50"},
	}
	payload := eventPayload("evt_bad", "checkout.session.completed", time.Now(), session)

	applied, err := svc.ProcessWebhook(context.Background(), payload, false)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.False(t, applied)

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	assert.Equal(t, 0, got.Credits)

	var stored models.BillingWebhookEvent
	require.NoError(t, db.Where("provider_event_id = ?", "evt_bad").First(&stored).Error)
	assert.False(t, stored.SignatureValid)
	assert.NotNil(t, stored.ProcessedAt)
}

func TestCheckoutEnforcesSingleSubscription(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "cus_1", 0)
	now := time.Now()
	api := &fakeStripeAPI{
		subscriptions: []stripe.Subscription{
			activeSubscription("sub_old", "cus_1", "prod_std", now.Add(-2*time.Hour)),
			activeSubscription("sub_mid", "cus_1", "prod_std", now.Add(-time.Hour)),
			activeSubscription("sub_new", "cus_1", "prod_std", now),
		},
	}
	svc := NewServiceFromDB(db, api)

	session := stripe.CheckoutSession{ID: "cs_1", Customer: "cus_1", Mode: "subscription"}
	_, err := svc.ProcessWebhook(context.Background(),
		eventPayload("evt_1", "checkout.session.completed", now, session), true)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"sub_old", "sub_mid"}, api.canceled)
}

func TestSubscriptionDeletedClearsPlan(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "cus_1", 100)
	user.Plan = "sub_1"
	require.NoError(t, db.Save(user).Error)

	ended := activeSubscription("sub_1", "cus_1", "prod_std", time.Now())
	ended.Status = "canceled"
	api := &fakeStripeAPI{subscriptions: []stripe.Subscription{ended}}
	svc := NewServiceFromDB(db, api)

	_, err := svc.ProcessWebhook(context.Background(),
		subscriptionEventPayload("evt_1", "customer.subscription.deleted", time.Now(), ended), true)
	require.NoError(t, err)

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	assert.Equal(t, models.PlanNone, got.Plan)
	assert.Equal(t, 0, got.Credits)
}

func TestSubscriptionDeletedAdoptsRemaining(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "cus_1", 100)
	user.Plan = "sub_old"
	require.NoError(t, db.Save(user).Error)

	now := time.Now()
	ended := activeSubscription("sub_old", "cus_1", "prod_std", now.Add(-time.Hour))
	ended.Status = "canceled"
	remaining := activeSubscription("sub_new", "cus_1", "prod_prem", now)
	api := &fakeStripeAPI{
		subscriptions: []stripe.Subscription{ended, remaining},
		products:      map[string]*stripe.Product{"prod_prem": productWithCredits("prod_prem", 500)},
	}
	svc := NewServiceFromDB(db, api)

	_, err := svc.ProcessWebhook(context.Background(),
		subscriptionEventPayload("evt_1", "customer.subscription.deleted", now, ended), true)
	require.NoError(t, err)

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	assert.Equal(t, "sub_new", got.Plan)
	assert.Equal(t, 500, got.Credits)
}

func TestEventForUnknownCustomerIsAcknowledged(t *testing.T) {
	db := newTestDB(t)
	api := &fakeStripeAPI{}
	svc := NewServiceFromDB(db, api)

	sub := activeSubscription("sub_1", "cus_ghost", "prod_std", time.Now())
	applied, err := svc.ProcessWebhook(context.Background(),
		subscriptionEventPayload("evt_1", "customer.subscription.updated", time.Now(), sub), true)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestResyncSubscription(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "cus_1", 100)
	user.Plan = "sub_gone"
	require.NoError(t, db.Save(user).Error)

	api := &fakeStripeAPI{}
	svc := NewServiceFromDB(db, api)

	require.NoError(t, svc.ResyncSubscription(context.Background(), user))

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	assert.Equal(t, models.PlanNone, got.Plan)
	// Resync only fixes the plan reference, the balance stays untouched.
	assert.Equal(t, 100, got.Credits)
}
