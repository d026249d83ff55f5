package credits

import (
	"context"
	"sync"
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

	// Single connection keeps concurrent ledger tests free of sqlite
	// busy errors without weakening the atomicity assertions.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.CreditTransaction{}))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, credits int) *models.User {
	t.Helper()
	user := &models.User{
		Name:  "Testnutzer",
		Email: "test@proshot.ai",
	}
	require.NoError(t, db.Create(user).Error)
	// Set the balance after create: a zero value in Create would be
	// overridden by the column default.
	require.NoError(t, db.Model(user).UpdateColumn("credits", credits).Error)
	user.Credits = credits
	return user
}

func TestDebitSpendsAndLogs(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 3)
	svc := NewService(db)

	balance, err := svc.Debit(context.Background(), user.ID, 3, map[string]any{"purpose": "image_generation"})
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	var entries []models.CreditTransaction
	require.NoError(t, db.Where("user_id = ?", user.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, -3, entries[0].Amount)
	assert.Equal(t, models.TransactionTypeUsage, entries[0].TransactionType)
	assert.Contains(t, entries[0].MetadataJSON, "image_generation")
}

func TestDebitInsufficientIsNonMutating(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 3)
	svc := NewService(db)

	balance, err := svc.Debit(context.Background(), user.ID, 4, nil)
	require.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, 3, balance)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.Equal(t, 3, stored.Credits)

	var count int64
	require.NoError(t, db.Model(&models.CreditTransaction{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Zero(t, count)

	// Spending the exact remaining balance still works afterwards.
	balance, err = svc.Debit(context.Background(), user.ID, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestDebitRejectsInvalidAmount(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 5)
	svc := NewService(db)

	for _, amount := range []int{0, -1} {
		_, err := svc.Debit(context.Background(), user.ID, amount, nil)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
}

func TestDebitUnknownUser(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	_, err := svc.Debit(context.Background(), 9999, 1, nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGrantAddsAndLogs(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 2)
	svc := NewService(db)

	balance, err := svc.Grant(context.Background(), user.ID, 50, models.TransactionTypePurchase, "cs_test_123", map[string]any{"package": "Standard"})
	require.NoError(t, err)
	assert.Equal(t, 52, balance)

	var entry models.CreditTransaction
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&entry).Error)
	assert.Equal(t, 50, entry.Amount)
	assert.Equal(t, models.TransactionTypePurchase, entry.TransactionType)
	assert.Equal(t, "cs_test_123", entry.PaymentReference)
}

func TestGrantRejectsUsageType(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 0)
	svc := NewService(db)

	_, err := svc.Grant(context.Background(), user.ID, 5, models.TransactionTypeUsage, "", nil)
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = svc.Grant(context.Background(), user.ID, 5, "unknown", "", nil)
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestConcurrentDebitsNeverGoNegative(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 5)
	svc := NewService(db)

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(context.Background(), user.ID, 1, nil)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if err != ErrInsufficientCredits {
				t.Errorf("unexpected debit error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.Equal(t, 0, stored.Credits)
	assert.GreaterOrEqual(t, stored.Credits, 0)

	var count int64
	require.NoError(t, db.Model(&models.CreditTransaction{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.EqualValues(t, 5, count)
}

func TestTransactionsPagination(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 100)
	svc := NewService(db)

	for i := 0; i < 15; i++ {
		_, err := svc.Debit(context.Background(), user.ID, 1, nil)
		require.NoError(t, err)
	}

	entries, total, err := svc.Transactions(context.Background(), user.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 15, total)
	assert.Len(t, entries, 10)

	entries, _, err = svc.Transactions(context.Background(), user.ID, 2, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestStats(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 10)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.Debit(ctx, user.ID, 4, nil)
	require.NoError(t, err)
	_, err = svc.Grant(ctx, user.ID, 30, models.TransactionTypePurchase, "", nil)
	require.NoError(t, err)
	_, err = svc.Grant(ctx, user.ID, 2, models.TransactionTypeRefund, "", nil)
	require.NoError(t, err)
	_, err = svc.Grant(ctx, user.ID, 5, models.TransactionTypeBonus, "", nil)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalUsed)
	assert.Equal(t, 30, stats.TotalPurchased)
	assert.Equal(t, 2, stats.TotalRefunded)
	assert.Equal(t, 5, stats.TotalGifted)
	assert.Equal(t, 43, stats.CurrentBalance)
	assert.EqualValues(t, 4, stats.TransactionCount)
}
