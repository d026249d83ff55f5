package controllers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/proshotai/proshot/app/models"
	"github.com/proshotai/proshot/app/repository"
	"github.com/proshotai/proshot/internal/pkg/account"
	"github.com/proshotai/proshot/internal/pkg/cache"
	"github.com/proshotai/proshot/internal/pkg/credits"
	"github.com/proshotai/proshot/internal/pkg/session"
	"github.com/proshotai/proshot/internal/pkg/usercontext"
)

// creditsCacheTTL keeps the balance hot between generations without letting
// a stale value survive long after a webhook reset.
const creditsCacheTTL = 5 * time.Minute

// UserController serves account data, the credit balance and the ledger.
type UserController struct {
	users    repository.UserRepository
	ledger   *credits.Service
	accounts *account.Service
}

// NewUserController wires the user controller with its dependencies.
func NewUserController(users repository.UserRepository, ledger *credits.Service, accounts *account.Service) *UserController {
	return &UserController{users: users, ledger: ledger, accounts: accounts}
}

// HandleGetAccount returns account information for the authenticated user.
func (uc *UserController) HandleGetAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	user, err := uc.users.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User nicht gefunden"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "User konnte nicht geladen werden"})
	}

	response := fiber.Map{
		"id":          user.ID,
		"name":        user.Name,
		"email":       user.Email,
		"avatar_url":  user.AvatarURL,
		"status":      user.Status,
		"is_admin":    user.Role == models.ROLE_ADMIN,
		"plan":        user.Plan,
		"is_canceled": user.IsCanceled,
		"credits":     user.Credits,
		"created_at":  user.CreatedAt.UTC().Format(time.RFC3339),
	}
	return c.JSON(response)
}

// HandleGetCredits returns the current balance, read through the cache.
func (uc *UserController) HandleGetCredits(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	if balance, err := cache.GetInt(cache.CreditsKey(userCtx.UserID)); err == nil {
		return c.JSON(fiber.Map{"credits": balance, "cached": true})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()
	balance, err := uc.ledger.Balance(ctx, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Credits konnten nicht geladen werden"})
	}
	if err := cache.Set(cache.CreditsKey(userCtx.UserID), strconv.Itoa(balance), creditsCacheTTL); err != nil {
		log.Printf("[User] Credits-Cache für User %d nicht aktualisiert: %v", userCtx.UserID, err)
	}

	return c.JSON(fiber.Map{"credits": balance})
}

// HandleGetTransactions returns the paginated credit ledger, newest first.
func (uc *UserController) HandleGetTransactions(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	page := parseFormInt(c.Query("page", "1"), 1)
	pageSize := parseFormInt(c.Query("page_size", "20"), 20)

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()
	entries, total, err := uc.ledger.Transactions(ctx, userCtx.UserID, page, pageSize)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Transaktionen konnten nicht geladen werden"})
	}

	return c.JSON(fiber.Map{
		"transactions": entries,
		"page":         page,
		"page_size":    pageSize,
		"total":        total,
	})
}

// HandleGetUsageStats returns aggregated ledger statistics.
func (uc *UserController) HandleGetUsageStats(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()
	stats, err := uc.ledger.Stats(ctx, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Statistiken konnten nicht geladen werden"})
	}
	return c.JSON(stats)
}

// HandleGetPlan resolves the user's subscription reference to its catalog
// entry.
func (uc *UserController) HandleGetPlan(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	user, err := uc.users.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "User konnte nicht geladen werden"})
	}

	response := fiber.Map{
		"plan":        user.Plan,
		"is_canceled": user.IsCanceled,
		"credits":     user.Credits,
		"has_plan":    user.HasActivePlan(),
	}
	return c.JSON(response)
}

// HandleDeleteAccount removes the account. Deletion is refused while a paid
// subscription is still running; the session is destroyed last so a refused
// deletion keeps the user logged in.
func (uc *UserController) HandleDeleteAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()
	if err := uc.accounts.Delete(ctx, userCtx.UserID); err != nil {
		if errors.Is(err, account.ErrPendingSubscription) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "pending_subscription", "message": err.Error()})
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User nicht gefunden"})
		}
		log.Printf("[User] Kontolöschung für User %d fehlgeschlagen: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Konto konnte nicht gelöscht werden"})
	}

	cache.InvalidateCredits(userCtx.UserID)
	if sess, err := session.GetSessionStore().Get(c); err == nil {
		_ = sess.Destroy()
	}

	return c.JSON(fiber.Map{"message": "Dein Konto wurde gelöscht."})
}
