package account

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/proshotai/proshot/app/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.CreditTransaction{}))
	return db
}

// fakeBilling counts customer lifecycle calls and can fail on demand.
type fakeBilling struct {
	nextID     int
	created    []string
	deleted    []string
	failCreate bool
	failDelete bool
}

func (f *fakeBilling) CreateCustomer(_ context.Context, _, email string, _ uint) (string, error) {
	if f.failCreate {
		return "", errors.New("stripe nicht erreichbar")
	}
	f.nextID++
	id := fmt.Sprintf("cus_%d", f.nextID)
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeBilling) DeleteCustomer(_ context.Context, customerID string) error {
	if f.failDelete {
		return errors.New("stripe nicht erreichbar")
	}
	f.deleted = append(f.deleted, customerID)
	return nil
}

func TestProvisionCreatesUserWithBillingIdentity(t *testing.T) {
	db := newTestDB(t)
	billing := &fakeBilling{}
	svc := NewService(db, billing)

	user := &models.User{Name: "Anna", Email: "Anna@Proshot.AI"}
	require.NoError(t, svc.Provision(context.Background(), user))

	var got models.User
	require.NoError(t, db.Where("email = ?", "anna@proshot.ai").First(&got).Error)
	assert.Equal(t, "cus_1", got.StripeCustomerID)
	assert.Equal(t, models.FreeCredits, got.Credits)
}

func TestProvisionIsIdempotentPerEmail(t *testing.T) {
	db := newTestDB(t)
	billing := &fakeBilling{}
	svc := NewService(db, billing)

	require.NoError(t, svc.Provision(context.Background(), &models.User{Name: "Anna", Email: "anna@proshot.ai"}))
	err := svc.Provision(context.Background(), &models.User{Name: "Anna", Email: "anna@proshot.ai"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	// The second attempt must not leave a second billing identity behind.
	assert.Len(t, billing.created, 1)
}

func TestProvisionCompensatesOnInsertFailure(t *testing.T) {
	db := newTestDB(t)
	billing := &fakeBilling{}
	svc := NewService(db, billing)

	// A soft-deleted row is invisible to the pre-check but still occupies
	// the unique email index, so the insert itself fails and the freshly
	// created billing identity has to be torn down again.
	old := &models.User{Name: "Anna", Email: "anna@proshot.ai"}
	require.NoError(t, db.Create(old).Error)
	require.NoError(t, db.Delete(old).Error)

	err := svc.Provision(context.Background(), &models.User{Name: "Anna", Email: "anna@proshot.ai"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	require.Len(t, billing.created, 1)
	assert.Equal(t, billing.created, billing.deleted)
}

func TestProvisionStripeFailureCreatesNothing(t *testing.T) {
	db := newTestDB(t)
	billing := &fakeBilling{failCreate: true}
	svc := NewService(db, billing)

	err := svc.Provision(context.Background(), &models.User{Name: "Anna", Email: "anna@proshot.ai"})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestDeleteBlockedByActivePlan(t *testing.T) {
	db := newTestDB(t)
	billing := &fakeBilling{}
	svc := NewService(db, billing)

	user := &models.User{Name: "Anna", Email: "anna@proshot.ai", StripeCustomerID: "cus_1", Plan: "sub_1"}
	require.NoError(t, db.Create(user).Error)

	err := svc.Delete(context.Background(), user.ID)
	assert.ErrorIs(t, err, ErrPendingSubscription)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDeleteAllowedWhenPlanCanceled(t *testing.T) {
	db := newTestDB(t)
	billing := &fakeBilling{}
	svc := NewService(db, billing)

	user := &models.User{Name: "Anna", Email: "anna@proshot.ai", StripeCustomerID: "cus_1", Plan: "sub_1", IsCanceled: true}
	require.NoError(t, db.Create(user).Error)

	require.NoError(t, svc.Delete(context.Background(), user.ID))
	assert.Equal(t, []string{"cus_1"}, billing.deleted)

	err := db.First(&models.User{}, user.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeleteSurvivesStripeOutage(t *testing.T) {
	db := newTestDB(t)
	billing := &fakeBilling{failDelete: true}
	svc := NewService(db, billing)

	user := &models.User{Name: "Anna", Email: "anna@proshot.ai", StripeCustomerID: "cus_1"}
	require.NoError(t, db.Create(user).Error)

	// Local deletion wins even when the billing side is down.
	require.NoError(t, svc.Delete(context.Background(), user.ID))
	err := db.First(&models.User{}, user.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
