package middleware

import (
	"github.com/gofiber/fiber/v2"

	icuser "github.com/proshotai/proshot/internal/pkg/usercontext"
)

func isLoggedIn(c *fiber.Ctx) bool {
	v := c.Locals(icuser.KeyFromProtected)
	b, ok := v.(bool)
	return ok && b
}

// RequireAuth guards session-bound routes with a JSON 401.
func RequireAuth(c *fiber.Ctx) error {
	if !isLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "Anmeldung erforderlich",
		})
	}
	return c.Next()
}

// RequireAPISessionAuth ensures a logged-in session for API routes.
func RequireAPISessionAuth(c *fiber.Ctx) error {
	if !isLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "Anmeldung erforderlich",
		})
	}
	return c.Next()
}
