package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	icuser "github.com/proshotai/proshot/internal/pkg/usercontext"
)

func newAuthTestApp(loggedIn bool) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(icuser.KeyFromProtected, loggedIn)
		return c.Next()
	})
	app.Get("/session", RequireAuth, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/api", RequireAPISessionAuth, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequireAuthRejectsAnonymous(t *testing.T) {
	app := newAuthTestApp(false)

	for _, path := range []string{"/session", "/api"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, path)
		assert.Equal(t, fiber.MIMEApplicationJSON, resp.Header.Get(fiber.HeaderContentType))
	}
}

func TestRequireAuthPassesLoggedIn(t *testing.T) {
	app := newAuthTestApp(true)

	for _, path := range []string{"/session", "/api"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, path)
	}
}
