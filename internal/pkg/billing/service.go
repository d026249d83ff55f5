package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"

	"github.com/proshotai/proshot/app/models"
	"github.com/proshotai/proshot/internal/pkg/credits"
	"github.com/proshotai/proshot/internal/pkg/plans"
	"github.com/proshotai/proshot/internal/pkg/stripe"
	"gorm.io/gorm"
)

// ErrInvalidSignature marks a webhook delivery whose signature check failed.
// The event is stored for forensics but never applied.
var ErrInvalidSignature = errors.New("ungültige Webhook-Signatur")

// StripeAPI is the slice of the Stripe client the plan sync needs.
type StripeAPI interface {
	ListSubscriptions(ctx context.Context, customerID, status string) ([]stripe.Subscription, error)
	RetrieveProduct(ctx context.Context, productID string) (*stripe.Product, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// Service keeps local plan and credit state in sync with Stripe webhook
// events and enforces the one-active-subscription policy.
type Service struct {
	repo   Repository
	api    StripeAPI
	ledger *credits.Service
}

// NewService creates a billing service from injected dependencies.
func NewService(repo Repository, api StripeAPI, ledger *credits.Service) *Service {
	return &Service{repo: repo, api: api, ledger: ledger}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, api StripeAPI) *Service {
	return NewService(NewRepository(db), api, credits.NewService(db))
}

// ProcessWebhook records and applies one webhook delivery. Redeliveries of an
// already processed event id are acknowledged without re-applying. The
// returned applied flag is false for duplicates and unknown event types.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, signatureValid bool) (bool, error) {
	event, err := ParseEvent(payload)
	if err != nil {
		return false, err
	}

	created, stored, err := s.repo.CreateWebhookEventIfNotExists(&models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		PayloadJSON:     string(payload),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		return false, fmt.Errorf("webhook event speichern: %w", err)
	}
	// The insert is the claim: only the delivery that created the row may
	// apply the event. A redelivery racing in before MarkWebhookProcessed
	// would otherwise re-run a credit grant.
	if !created {
		log.Printf("[Billing] Event %s bereits registriert, übersprungen", event.ID)
		return false, nil
	}
	if !signatureValid {
		if err := s.repo.MarkWebhookProcessed(stored.ID, ErrInvalidSignature.Error()); err != nil {
			log.Printf("[Billing] Event %s konnte nicht als verarbeitet markiert werden: %v", event.ID, err)
		}
		return false, ErrInvalidSignature
	}

	applyErr := s.apply(ctx, event)
	errMsg := ""
	if applyErr != nil {
		errMsg = applyErr.Error()
	}
	if err := s.repo.MarkWebhookProcessed(stored.ID, errMsg); err != nil {
		log.Printf("[Billing] Event %s konnte nicht als verarbeitet markiert werden: %v", event.ID, err)
	}
	return applyErr == nil, applyErr
}

func (s *Service) apply(ctx context.Context, event *Event) error {
	switch event.Kind {
	case EventCustomerCreated:
		// Account provisioning creates the local row; nothing to sync here.
		return nil
	case EventCustomerDeleted:
		return s.applyCustomerDeleted(event)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return s.applySubscriptionChange(ctx, event)
	case EventSubscriptionDeleted:
		return s.applySubscriptionDeleted(ctx, event)
	case EventCheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, event)
	default:
		log.Printf("[Billing] Unbekannter Event-Typ %s, ignoriert", event.Type)
		return nil
	}
}

func (s *Service) applyCustomerDeleted(event *Event) error {
	user, err := s.userForEvent(event)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}
	return s.repo.ClearBillingIdentity(user.ID)
}

// applySubscriptionChange writes the event's full plan snapshot, including
// the plan's credit allotment. Mid-cycle upgrades therefore overwrite any
// remaining balance instead of adding to it.
func (s *Service) applySubscriptionChange(ctx context.Context, event *Event) error {
	user, err := s.userForEvent(event)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	sub := event.Subscription
	if sub.IsCanceled() {
		return s.adoptRemainingOrClear(ctx, user, event)
	}

	allotment, err := s.creditsForSubscription(ctx, sub)
	if err != nil {
		return err
	}

	applied, err := s.repo.ApplyPlanState(user.ID, sub.ID, sub.CancelAtPeriodEnd, allotment, event.Created)
	if err != nil {
		return err
	}
	if !applied {
		log.Printf("[Billing] Veraltetes Event %s für User %d übersprungen", event.ID, user.ID)
	}
	return nil
}

func (s *Service) applySubscriptionDeleted(ctx context.Context, event *Event) error {
	user, err := s.userForEvent(event)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}
	return s.adoptRemainingOrClear(ctx, user, event)
}

// adoptRemainingOrClear re-lists the customer's subscriptions after an end of
// subscription. If another live subscription exists its plan is adopted,
// otherwise the plan is cleared and the allotment drops to zero.
func (s *Service) adoptRemainingOrClear(ctx context.Context, user *models.User, event *Event) error {
	subs, err := s.api.ListSubscriptions(ctx, user.StripeCustomerID, "all")
	if err != nil {
		return fmt.Errorf("subscriptions auflisten: %w", err)
	}

	for i := range subs {
		sub := &subs[i]
		if sub.IsCanceled() || sub.ID == event.Subscription.ID {
			continue
		}
		allotment, err := s.creditsForSubscription(ctx, sub)
		if err != nil {
			return err
		}
		applied, err := s.repo.ApplyPlanState(user.ID, sub.ID, sub.CancelAtPeriodEnd, allotment, event.Created)
		if err != nil {
			return err
		}
		if !applied {
			log.Printf("[Billing] Veraltetes Event %s für User %d übersprungen", event.ID, user.ID)
		}
		return nil
	}

	applied, err := s.repo.ClearPlanState(user.ID, event.Created)
	if err != nil {
		return err
	}
	if !applied {
		log.Printf("[Billing] Veraltetes Event %s für User %d übersprungen", event.ID, user.ID)
	}
	return nil
}

// applyCheckoutCompleted handles both checkout modes: one-time credit
// packages grant their credits to the ledger, subscription checkouts trigger
// the one-active-subscription cleanup.
func (s *Service) applyCheckoutCompleted(ctx context.Context, event *Event) error {
	user, err := s.userForEvent(event)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	session := event.Checkout
	if session.Mode == "payment" {
		return s.grantCreditPackage(ctx, user, session)
	}
	return s.enforceSingleSubscription(ctx, user)
}

func (s *Service) grantCreditPackage(ctx context.Context, user *models.User, session *stripe.CheckoutSession) error {
	amount, err := strconv.Atoi(session.Metadata["credits"])
	if err != nil || amount <= 0 {
		log.Printf("[Billing] Checkout %s ohne gültige Credit-Angabe, ignoriert", session.ID)
		return nil
	}
	meta := map[string]any{"package_name": session.Metadata["package_name"]}
	_, err = s.ledger.Grant(ctx, user.ID, amount, models.TransactionTypePurchase, session.ID, meta)
	return err
}

// enforceSingleSubscription keeps only the most recently created active
// subscription and cancels the rest, so a second checkout replaces rather
// than stacks.
func (s *Service) enforceSingleSubscription(ctx context.Context, user *models.User) error {
	subs, err := s.api.ListSubscriptions(ctx, user.StripeCustomerID, "active")
	if err != nil {
		return fmt.Errorf("subscriptions auflisten: %w", err)
	}
	if len(subs) <= 1 {
		return nil
	}

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].Created > subs[j].Created
	})
	for _, sub := range subs[1:] {
		if err := s.api.CancelSubscription(ctx, sub.ID); err != nil {
			return fmt.Errorf("subscription %s kündigen: %w", sub.ID, err)
		}
		log.Printf("[Billing] Ältere Subscription %s für User %d gekündigt", sub.ID, user.ID)
	}
	return nil
}

// ResyncSubscription refreshes the plan reference from Stripe, used at login
// to recover from missed webhooks. Credits are left untouched, so the sync
// never clobbers a balance adjusted by later events.
func (s *Service) ResyncSubscription(ctx context.Context, user *models.User) error {
	if user.StripeCustomerID == "" {
		return nil
	}
	subs, err := s.api.ListSubscriptions(ctx, user.StripeCustomerID, "active")
	if err != nil {
		return fmt.Errorf("subscriptions auflisten: %w", err)
	}
	if len(subs) == 0 {
		if !user.HasActivePlan() {
			return nil
		}
		return s.repo.SetPlanRef(user.ID, models.PlanNone, false)
	}

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].Created > subs[j].Created
	})
	newest := subs[0]
	if user.Plan == newest.ID && user.IsCanceled == newest.CancelAtPeriodEnd {
		return nil
	}
	return s.repo.SetPlanRef(user.ID, newest.ID, newest.CancelAtPeriodEnd)
}

// creditsForSubscription resolves a subscription's credit allotment from the
// product metadata, falling back to the catalog by product name.
func (s *Service) creditsForSubscription(ctx context.Context, sub *stripe.Subscription) (int, error) {
	productID := sub.ProductID()
	if productID == "" {
		return 0, fmt.Errorf("subscription %s ohne Produktreferenz", sub.ID)
	}
	product, err := s.api.RetrieveProduct(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("produkt %s laden: %w", productID, err)
	}
	if raw, ok := product.Metadata["credits"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			return n, nil
		}
	}
	return plans.CreditsForProduct(product.Name), nil
}

// userForEvent resolves the local account behind an event's billing identity.
// Events for unknown customers are acknowledged without effect, so deleting
// an account does not turn trailing webhooks into redelivery loops.
func (s *Service) userForEvent(event *Event) (*models.User, error) {
	customerID := event.CustomerID()
	if customerID == "" {
		return nil, fmt.Errorf("event %s ohne Customer-Referenz", event.ID)
	}
	user, err := s.repo.GetUserByStripeCustomerID(customerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("[Billing] Kein User für Customer %s, Event %s ignoriert", customerID, event.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
