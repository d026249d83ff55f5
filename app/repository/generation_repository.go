package repository

import (
	"github.com/proshotai/proshot/app/models"
	"gorm.io/gorm"
)

// generationRepository implements the GenerationRepository interface
type generationRepository struct {
	db *gorm.DB
}

// NewGenerationRepository creates a new generation repository instance
func NewGenerationRepository(db *gorm.DB) GenerationRepository {
	return &generationRepository{db: db}
}

// Create creates a new generation in the database
func (r *generationRepository) Create(generation *models.Generation) error {
	return r.db.Create(generation).Error
}

// GetByUUID retrieves a generation with its images by UUID
func (r *generationRepository) GetByUUID(uuid string) (*models.Generation, error) {
	var generation models.Generation
	err := r.db.Preload("ReferenceImages").Preload("OutputImages").
		Where("uuid = ?", uuid).First(&generation).Error
	if err != nil {
		return nil, err
	}
	return &generation, nil
}

// GetByUserID retrieves a paginated gallery of a user's generations, newest first
func (r *generationRepository) GetByUserID(userID uint, offset, limit int) ([]models.Generation, error) {
	var generations []models.Generation
	err := r.db.Preload("OutputImages").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&generations).Error
	return generations, err
}

// Update updates an existing generation in the database
func (r *generationRepository) Update(generation *models.Generation) error {
	return r.db.Save(generation).Error
}

// UpdateStatus sets the processing status of a generation
func (r *generationRepository) UpdateStatus(uuid, status string) error {
	return r.db.Model(&models.Generation{}).
		Where("uuid = ?", uuid).
		UpdateColumn("status", status).Error
}

// Delete removes a generation together with its image rows
func (r *generationRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("generation_id = ?", id).Delete(&models.GenerationImage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("generation_id = ?", id).Delete(&models.GenerationReferenceImage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Generation{}, id).Error
	})
}

// CountByUserID returns the number of generations of a user
func (r *generationRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Generation{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// AddImages attaches output images to a generation
func (r *generationRepository) AddImages(generationID uint, images []models.GenerationImage) error {
	if len(images) == 0 {
		return nil
	}
	for i := range images {
		images[i].GenerationID = generationID
	}
	return r.db.Create(&images).Error
}

// AddReferenceImages attaches reference images to a generation
func (r *generationRepository) AddReferenceImages(generationID uint, refs []models.GenerationReferenceImage) error {
	if len(refs) == 0 {
		return nil
	}
	for i := range refs {
		refs[i].GenerationID = generationID
	}
	return r.db.Create(&refs).Error
}
