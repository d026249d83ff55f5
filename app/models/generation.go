package models

import "time"

const (
	GenerationStatusPending   = "pending"
	GenerationStatusCompleted = "completed"
	GenerationStatusFailed    = "failed"
)

// Generation tracks one AI composition job: the uploaded product photo,
// optional reference images, the prompt and the chosen settings.
type Generation struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UUID               string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	UserID             uint      `gorm:"not null;index" json:"user_id"`
	Title              string    `gorm:"type:varchar(200);default:''" json:"title"`
	TextPrompt         string    `gorm:"type:text" json:"text_prompt"`
	OriginalImagePath  string    `gorm:"type:varchar(512);default:''" json:"original_image_path"`
	NumberOfImages     int       `gorm:"not null;default:1" json:"number_of_images"`
	OutputFormat       string    `gorm:"type:varchar(10);not null;default:'webp'" json:"output_format"`
	AspectRatio        string    `gorm:"type:varchar(10);not null;default:'4:3'" json:"aspect_ratio"`
	Status             string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreditsSpent       int       `gorm:"not null;default:0" json:"credits_spent"`
	CreatedAt          time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	ReferenceImages []GenerationReferenceImage `gorm:"foreignKey:GenerationID" json:"reference_images,omitempty"`
	OutputImages    []GenerationImage          `gorm:"foreignKey:GenerationID" json:"output_images,omitempty"`
}

// GenerationReferenceImage is one uploaded style reference for a generation.
type GenerationReferenceImage struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	GenerationID uint      `gorm:"not null;index" json:"generation_id"`
	ImagePath    string    `gorm:"type:varchar(512);not null" json:"image_path"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GenerationImage is one generated output image stored in object storage.
type GenerationImage struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	GenerationID uint      `gorm:"not null;index" json:"generation_id"`
	ImagePath    string    `gorm:"type:varchar(512);not null" json:"image_path"`
	PreviewPath  string    `gorm:"type:varchar(512);default:''" json:"preview_path"`
	AspectRatio  string    `gorm:"type:varchar(10);default:''" json:"aspect_ratio"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
