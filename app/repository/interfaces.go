package repository

import (
	"github.com/proshotai/proshot/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	GetByResetToken(token string) (*models.User, error)
	GetByStripeCustomerID(customerID string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// GenerationRepository defines the interface for generation-related database operations
type GenerationRepository interface {
	Create(generation *models.Generation) error
	GetByUUID(uuid string) (*models.Generation, error)
	GetByUserID(userID uint, offset, limit int) ([]models.Generation, error)
	Update(generation *models.Generation) error
	UpdateStatus(uuid, status string) error
	Delete(id uint) error
	CountByUserID(userID uint) (int64, error)
	AddImages(generationID uint, images []models.GenerationImage) error
	AddReferenceImages(generationID uint, refs []models.GenerationReferenceImage) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	User       UserRepository
	Generation GenerationRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:       NewUserRepository(db),
		Generation: NewGenerationRepository(db),
	}
}
