package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/proshotai/proshot/app/repository"
	"github.com/proshotai/proshot/internal/pkg/billing"
	"github.com/proshotai/proshot/internal/pkg/env"
	"github.com/proshotai/proshot/internal/pkg/plans"
	"github.com/proshotai/proshot/internal/pkg/session"
	"github.com/proshotai/proshot/internal/pkg/stripe"
	"github.com/proshotai/proshot/internal/pkg/usercontext"
)

// BillingController handles the Stripe webhook, checkout and the billing
// portal.
type BillingController struct {
	service *billing.Service
	stripe  *stripe.Client
	users   repository.UserRepository
}

// NewBillingController wires the billing controller with its dependencies.
func NewBillingController(service *billing.Service, stripeClient *stripe.Client, users repository.UserRepository) *BillingController {
	return &BillingController{service: service, stripe: stripeClient, users: users}
}

// HandleStripeWebhook verifies, records and applies one webhook delivery.
// Permanent failures are acknowledged with 200 so Stripe stops redelivering;
// only transient processing errors return 5xx.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	signatureValid := stripe.VerifyWebhookSignature(rawBody, signature, secret)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	applied, err := bc.service.ProcessWebhook(ctx, rawBody, signatureValid)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
		}
		if errors.Is(err, billing.ErrInvalidEnvelope) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		log.Printf("[Billing] Webhook-Verarbeitung fehlgeschlagen: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}
	if !applied {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleListPlans returns the subscription and credit package catalog.
func (bc *BillingController) HandleListPlans(c *fiber.Ctx) error {
	planList := make([]fiber.Map, 0, 3)
	for _, p := range plans.All() {
		planList = append(planList, fiber.Map{
			"name":        p.Name,
			"price_cents": p.PriceCents,
			"description": p.Description,
			"features":    p.Features,
			"credits":     p.Credits,
		})
	}
	packageList := make([]fiber.Map, 0, 3)
	for _, p := range plans.Packages() {
		packageList = append(packageList, fiber.Map{
			"name":        p.Name,
			"price_cents": p.PriceCents,
			"credits":     p.Credits,
		})
	}
	return c.JSON(fiber.Map{"plans": planList, "packages": packageList})
}

type subscriptionCheckoutRequest struct {
	Plan string `json:"plan"`
}

// HandleCreateSubscriptionCheckout starts a hosted checkout for a plan.
func (bc *BillingController) HandleCreateSubscriptionCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req subscriptionCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "Ungültige Anfrage"})
	}

	plan, ok := plans.ByName(req.Plan)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_plan", "message": "Unbekannter Plan"})
	}
	priceID := plan.PriceID()
	if priceID == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "plan_not_configured", "message": "Plan ist nicht konfiguriert"})
	}

	user, err := bc.users.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "User konnte nicht geladen werden"})
	}
	if user.StripeCustomerID == "" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_billing_identity", "message": "Kein Billing-Konto vorhanden"})
	}

	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")
	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()
	url, err := bc.stripe.CreateSubscriptionCheckout(ctx, user.StripeCustomerID, priceID,
		base+"/dashboard?checkout=success", base+"/pricing?checkout=cancel")
	if err != nil {
		log.Printf("[Billing] Checkout für User %d fehlgeschlagen: %v", user.ID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "checkout_failed", "message": "Checkout konnte nicht gestartet werden"})
	}
	return c.JSON(fiber.Map{"url": url})
}

type creditCheckoutRequest struct {
	Package string `json:"package"`
}

// HandleCreateCreditCheckout starts a one-time payment checkout for a credit
// package.
func (bc *BillingController) HandleCreateCreditCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req creditCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "Ungültige Anfrage"})
	}

	pack, ok := plans.PackageByName(req.Package)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_package", "message": "Unbekanntes Credit-Paket"})
	}

	user, err := bc.users.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "User konnte nicht geladen werden"})
	}
	if user.StripeCustomerID == "" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_billing_identity", "message": "Kein Billing-Konto vorhanden"})
	}

	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")
	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()
	url, err := bc.stripe.CreateCreditCheckout(ctx, stripe.CreditCheckoutInput{
		CustomerID:  user.StripeCustomerID,
		UserID:      user.ID,
		PackageName: pack.Name,
		Credits:     pack.Credits,
		PriceCents:  pack.PriceCents,
		SuccessURL:  base + "/dashboard?credits=success",
		CancelURL:   base + "/pricing?credits=cancel",
	})
	if err != nil {
		log.Printf("[Billing] Credit-Checkout für User %d fehlgeschlagen: %v", user.ID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "checkout_failed", "message": "Checkout konnte nicht gestartet werden"})
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleBillingPortal opens the hosted billing portal, optionally jumping
// straight into the cancel or update flow of the current subscription.
func (bc *BillingController) HandleBillingPortal(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	flow := c.Query("flow", stripe.PortalFlowStandard)
	switch flow {
	case stripe.PortalFlowStandard, stripe.PortalFlowSubCancel, stripe.PortalFlowSubUpdate:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_flow", "message": "Unbekannter Portal-Flow"})
	}

	user, err := bc.users.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "User konnte nicht geladen werden"})
	}
	if user.StripeCustomerID == "" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_billing_identity", "message": "Kein Billing-Konto vorhanden"})
	}
	if flow != stripe.PortalFlowStandard && !user.HasActivePlan() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_subscription", "message": "Kein aktives Abonnement vorhanden"})
	}

	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")
	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()
	url, err := bc.stripe.CreatePortalSession(ctx, user.StripeCustomerID, flow, user.Plan, base+"/account")
	if err != nil {
		log.Printf("[Billing] Portal-Session für User %d fehlgeschlagen: %v", user.ID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "portal_failed", "message": "Billing-Portal konnte nicht geöffnet werden"})
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleBillingResync refreshes the plan from Stripe on request.
func (bc *BillingController) HandleBillingResync(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	user, err := bc.users.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User nicht gefunden"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "User konnte nicht geladen werden"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()
	if err := bc.service.ResyncSubscription(ctx, user); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "resync_failed", "message": "Plan-Re-Sync fehlgeschlagen"})
	}

	refreshed, err := bc.users.GetByID(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "User konnte nicht geladen werden"})
	}
	_ = session.SetSessionValue(c, "user_plan", refreshed.Plan)

	return c.JSON(fiber.Map{
		"plan":        refreshed.Plan,
		"is_canceled": refreshed.IsCanceled,
	})
}
