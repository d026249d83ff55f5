package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apiv1 "github.com/proshotai/proshot/internal/api/v1"
)

type ApiRouter struct {
	ctrl Controllers
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Webhook delivery bursts must not hit the limiter; Stripe retries
	// throttled events with long backoff.
	api := app.Group("/api", limiter.New(limiter.Config{
		Max: 60,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/api/v1/billing/webhook/stripe"
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer(h.ctrl.Billing, h.ctrl.Generation, h.ctrl.User)
	apiv1.RegisterHandlers(v1, apiServer)
}

func NewApiRouter(ctrl Controllers) *ApiRouter {
	return &ApiRouter{ctrl: ctrl}
}
