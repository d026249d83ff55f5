package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/proshotai/proshot/app/models"
	"github.com/proshotai/proshot/app/repository"
	"github.com/proshotai/proshot/internal/pkg/account"
	"github.com/proshotai/proshot/internal/pkg/billing"
	"github.com/proshotai/proshot/internal/pkg/env"
	"github.com/proshotai/proshot/internal/pkg/hcaptcha"
	"github.com/proshotai/proshot/internal/pkg/mail"
	"github.com/proshotai/proshot/internal/pkg/session"
	"github.com/proshotai/proshot/internal/pkg/usercontext"
)

// AuthController handles registration, activation, login and logout.
type AuthController struct {
	users    repository.UserRepository
	accounts *account.Service
	billing  *billing.Service
}

// NewAuthController wires the auth controller with its dependencies.
func NewAuthController(users repository.UserRepository, accounts *account.Service, billingSvc *billing.Service) *AuthController {
	return &AuthController{users: users, accounts: accounts, billing: billingSvc}
}

type registerRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates a new account including its billing identity and
// sends the activation mail.
func (ac *AuthController) HandleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "Ungültige Anfrage"})
	}

	if env.GetEnv("HCAPTCHA_SECRET", "") != "" {
		if ok, err := hcaptcha.Verify(req.CaptchaToken); !ok {
			log.Printf("[Auth] hCaptcha fehlgeschlagen: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "captcha_failed", "message": "Captcha-Prüfung fehlgeschlagen"})
		}
	}

	user, err := models.CreateUser(req.Name, req.Email, req.Password)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": "Bitte überprüfe deine Angaben"})
	}
	if err := user.GenerateActivationToken(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Registrierung fehlgeschlagen"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()
	if err := ac.accounts.Provision(ctx, user); err != nil {
		if errors.Is(err, account.ErrEmailTaken) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "email_taken", "message": err.Error()})
		}
		log.Printf("[Auth] Registrierung fehlgeschlagen: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Registrierung fehlgeschlagen"})
	}

	go func() {
		if err := mail.SendActivationMail(user.Email, user.Name, user.ActivationToken); err != nil {
			log.Printf("[Auth] Aktivierungsmail an %s fehlgeschlagen: %v", user.Email, err)
		}
	}()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Registrierung erfolgreich. Bitte bestätige deine E-Mail-Adresse.",
	})
}

// HandleActivate confirms the mail address behind an activation token.
func (ac *AuthController) HandleActivate(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_token", "message": "Aktivierungstoken fehlt"})
	}

	user, err := ac.users.GetByActivationToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "invalid_token", "message": "Ungültiger oder abgelaufener Aktivierungstoken"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Aktivierung fehlgeschlagen"})
	}

	user.Status = models.STATUS_ACTIVE
	user.ActivationToken = ""
	if err := ac.users.Update(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Aktivierung fehlgeschlagen"})
	}

	go func() {
		if err := mail.SendWelcomeMail(user.Email, user.Name, models.FreeCredits); err != nil {
			log.Printf("[Auth] Willkommensmail an %s fehlgeschlagen: %v", user.Email, err)
		}
	}()

	return c.JSON(fiber.Map{"message": "Konto aktiviert. Du kannst dich jetzt einloggen."})
}

// HandleLogin authenticates a user and refreshes the plan from Stripe, so a
// webhook missed during downtime cannot leave a stale subscription behind.
func (ac *AuthController) HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "Ungültige Anfrage"})
	}

	// notice: in production you should not inform the user
	// with detailed messages about login failures
	user, err := ac.users.GetByEmail(req.Email)
	if err != nil || !models.CheckPasswordHash(req.Password, user.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "login_failed", "message": "E-Mail oder Passwort ist falsch"})
	}
	if !user.IsActive() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not_activated", "message": "Bitte bestätige zuerst deine E-Mail-Adresse"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()
	if err := ac.billing.ResyncSubscription(ctx, user); err != nil {
		log.Printf("[Auth] Plan-Resync für User %d fehlgeschlagen: %v", user.ID, err)
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Session konnte nicht geladen werden"})
	}
	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUsername, user.Name)
	sess.Set(usercontext.KeyIsAdmin, user.Role == models.ROLE_ADMIN)
	if err := sess.Save(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Session konnte nicht gespeichert werden"})
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := ac.users.Update(user); err != nil {
		log.Printf("[Auth] last_login_at für User %d nicht aktualisiert: %v", user.ID, err)
	}

	return c.JSON(fiber.Map{
		"message": "Glückwunsch du bist drin! Viel Spaß!",
		"user": fiber.Map{
			"id":      user.ID,
			"name":    user.Name,
			"email":   user.Email,
			"plan":    user.Plan,
			"credits": user.Credits,
		},
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// resetTokenTTL bounds how long a reset link stays usable.
const resetTokenTTL = time.Hour

// HandleForgotPassword issues a reset token and mails the link. The response
// is the same whether or not the address exists, so the endpoint cannot be
// used to probe registered mails.
func (ac *AuthController) HandleForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "Ungültige Anfrage"})
	}

	neutral := fiber.Map{"message": "Falls ein Konto mit dieser E-Mail existiert, haben wir dir einen Link geschickt."}

	user, err := ac.users.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return c.JSON(neutral)
	}

	if err := user.GenerateResetToken(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Anfrage fehlgeschlagen"})
	}
	if err := ac.users.Update(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Anfrage fehlgeschlagen"})
	}

	go func() {
		if err := mail.SendPasswordResetMail(user.Email, user.Name, user.ResetToken); err != nil {
			log.Printf("[Auth] Reset-Mail an %s fehlgeschlagen: %v", user.Email, err)
		}
	}()

	return c.JSON(neutral)
}

// HandleResetPassword sets a new password behind a valid reset token.
func (ac *AuthController) HandleResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "Ungültige Anfrage"})
	}
	if req.Token == "" || len(req.Password) < 6 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": "Das Passwort muss mindestens 6 Zeichen lang sein"})
	}

	user, err := ac.users.GetByResetToken(req.Token)
	if err != nil || user.ResetSentAt == nil || time.Since(*user.ResetSentAt) > resetTokenTTL {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_token", "message": "Ungültiger oder abgelaufener Link"})
	}

	if err := user.SetPassword(req.Password); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Passwort konnte nicht gesetzt werden"})
	}
	user.ResetToken = ""
	user.ResetSentAt = nil
	if err := ac.users.Update(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Passwort konnte nicht gesetzt werden"})
	}

	return c.JSON(fiber.Map{"message": "Dein Passwort wurde geändert. Du kannst dich jetzt einloggen."})
}

// HandleLogout destroys the session.
func (ac *AuthController) HandleLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err == nil {
		if err := sess.Destroy(); err != nil {
			log.Printf("[Auth] Session konnte nicht zerstört werden: %v", err)
		}
	}
	c.Locals(usercontext.KeyFromProtected, false)
	return c.JSON(fiber.Map{"message": "Bye bye! Auf Wiedersehen."})
}
