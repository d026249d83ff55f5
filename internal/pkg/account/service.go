package account

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/proshotai/proshot/app/models"
	"gorm.io/gorm"
)

var (
	// ErrEmailTaken signals that the address already has an account.
	ErrEmailTaken = errors.New("diese E-Mail-Adresse wird bereits verwendet")
	// ErrPendingSubscription blocks deletion while a paid plan is live.
	ErrPendingSubscription = errors.New("das Konto hat noch ein aktives Abonnement, bitte zuerst kündigen")
)

// BillingProvisioner is the slice of the Stripe client provisioning needs.
type BillingProvisioner interface {
	CreateCustomer(ctx context.Context, name, email string, userID uint) (string, error)
	DeleteCustomer(ctx context.Context, customerID string) error
}

// Service creates and removes accounts together with their billing identity.
type Service struct {
	db  *gorm.DB
	api BillingProvisioner
}

// NewService creates an account service.
func NewService(db *gorm.DB, api BillingProvisioner) *Service {
	return &Service{db: db, api: api}
}

// Provision creates the local account plus its Stripe customer. The flow is
// customer first, row second: if the row insert fails the customer is deleted
// again, so no orphaned billing identity survives a partial signup. Calling
// it twice with the same email returns ErrEmailTaken instead of a duplicate.
func (s *Service) Provision(ctx context.Context, user *models.User) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" {
		return errors.New("E-Mail-Adresse wird benötigt")
	}
	user.Email = email

	var existing models.User
	err := s.db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	customerID, err := s.api.CreateCustomer(ctx, user.Name, email, 0)
	if err != nil {
		return fmt.Errorf("billing-konto anlegen: %w", err)
	}
	user.StripeCustomerID = customerID
	if user.Credits == 0 {
		user.Credits = models.FreeCredits
	}

	if err := s.db.Create(user).Error; err != nil {
		if delErr := s.api.DeleteCustomer(ctx, customerID); delErr != nil {
			log.Printf("[Account] Verwaister Stripe-Customer %s konnte nicht entfernt werden: %v", customerID, delErr)
		}
		if isDuplicateKey(err) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

// Delete removes an account. Deletion is refused while a non-canceled paid
// plan exists; the local row goes first, the Stripe customer second so a
// Stripe outage never leaves a deleted customer with a live local account.
func (s *Service) Delete(ctx context.Context, userID uint) error {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return err
	}

	if user.HasActivePlan() && !user.IsCanceled {
		return ErrPendingSubscription
	}

	if err := s.db.Delete(&models.User{}, userID).Error; err != nil {
		return err
	}

	if user.StripeCustomerID != "" {
		if err := s.api.DeleteCustomer(ctx, user.StripeCustomerID); err != nil {
			// Best effort: the customer has no local account anymore,
			// trailing webhooks for it are acknowledged and dropped.
			log.Printf("[Account] Stripe-Customer %s konnte nicht entfernt werden: %v", user.StripeCustomerID, err)
		}
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}
