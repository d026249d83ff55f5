package repository

import (
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

	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

func TestGetByEmailNormalizesAddress(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)

	// Provisioning stores addresses lowercased.
	require.NoError(t, repo.Create(&models.User{
		Name:  "Anna",
		Email: "anna@proshot.ai",
	}))

	for _, input := range []string{"anna@proshot.ai", "Anna@Proshot.AI", "  anna@proshot.ai "} {
		user, err := repo.GetByEmail(input)
		require.NoError(t, err, "lookup with %q", input)
		assert.Equal(t, "anna@proshot.ai", user.Email)
	}

	_, err := repo.GetByEmail("unbekannt@proshot.ai")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
