package billing

import (
	"time"

	"github.com/proshotai/proshot/app/models"
	"github.com/proshotai/proshot/internal/pkg/cache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	GetUserByStripeCustomerID(customerID string) (*models.User, error)
	ApplyPlanState(userID uint, plan string, isCanceled bool, credits int, eventAt time.Time) (bool, error)
	ClearPlanState(userID uint, eventAt time.Time) (bool, error)
	SetPlanRef(userID uint, plan string, isCanceled bool) error
	ClearBillingIdentity(userID uint) error
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUserByStripeCustomerID(customerID string) (*models.User, error) {
	var user models.User
	err := r.db.Where("stripe_customer_id = ?", customerID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ApplyPlanState writes the full plan snapshot of an event. The
// plan_synced_at guard makes replayed or late-delivered events with an older
// event timestamp a no-op; the return value reports whether the row changed.
func (r *gormRepository) ApplyPlanState(userID uint, plan string, isCanceled bool, credits int, eventAt time.Time) (bool, error) {
	res := r.db.Model(&models.User{}).
		Where("id = ? AND (plan_synced_at IS NULL OR plan_synced_at <= ?)", userID, eventAt).
		Updates(map[string]interface{}{
			"plan":           plan,
			"is_canceled":    isCanceled,
			"credits":        credits,
			"plan_synced_at": eventAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		cache.InvalidateCredits(userID)
	}
	return res.RowsAffected > 0, nil
}

// ClearPlanState removes the subscription reference and zeroes the allotment,
// subject to the same event-timestamp guard as ApplyPlanState.
func (r *gormRepository) ClearPlanState(userID uint, eventAt time.Time) (bool, error) {
	res := r.db.Model(&models.User{}).
		Where("id = ? AND (plan_synced_at IS NULL OR plan_synced_at <= ?)", userID, eventAt).
		Updates(map[string]interface{}{
			"plan":           models.PlanNone,
			"is_canceled":    false,
			"credits":        0,
			"plan_synced_at": eventAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		cache.InvalidateCredits(userID)
	}
	return res.RowsAffected > 0, nil
}

// SetPlanRef updates only the subscription reference, leaving the credit
// balance and sync timestamp untouched. Used by the login-time resync.
func (r *gormRepository) SetPlanRef(userID uint, plan string, isCanceled bool) error {
	return r.db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"plan":        plan,
			"is_canceled": isCanceled,
		}).Error
}

func (r *gormRepository) ClearBillingIdentity(userID uint) error {
	return r.db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"stripe_customer_id": "",
			"plan":               models.PlanNone,
			"is_canceled":        false,
		}).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
