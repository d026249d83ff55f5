package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/proshotai/proshot/app/controllers"
	"github.com/proshotai/proshot/internal/pkg/middleware"
)

// APIServer bundles the controllers behind the public v1 surface.
type APIServer struct {
	billing     *controllers.BillingController
	generations *controllers.GenerationController
	users       *controllers.UserController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(billing *controllers.BillingController, generations *controllers.GenerationController, users *controllers.UserController) *APIServer {
	return &APIServer{
		billing:     billing,
		generations: generations,
		users:       users,
	}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
}

// RegisterHandlers attaches all v1 routes to the given group. The Stripe
// webhook and the plan catalog stay outside the session guard; everything
// else requires an authenticated session.
func RegisterHandlers(v1 fiber.Router, s *APIServer) {
	v1.Get("/ping", s.GetPing)

	// Signature-verified in the controller, no session required.
	v1.Post("/billing/webhook/stripe", s.billing.HandleStripeWebhook)
	v1.Get("/billing/plans", s.billing.HandleListPlans)

	billing := v1.Group("/billing", middleware.RequireAPISessionAuth)
	billing.Post("/checkout/subscription", s.billing.HandleCreateSubscriptionCheckout)
	billing.Post("/checkout/credits", s.billing.HandleCreateCreditCheckout)
	billing.Post("/portal", s.billing.HandleBillingPortal)
	billing.Post("/resync", s.billing.HandleBillingResync)

	generations := v1.Group("/generations", middleware.RequireAPISessionAuth)
	generations.Post("/", s.generations.HandleCreateGeneration)
	generations.Get("/", s.generations.HandleListGenerations)
	generations.Get("/:uuid", s.generations.HandleGetGeneration)

	user := v1.Group("/user", middleware.RequireAPISessionAuth)
	user.Get("/account", s.users.HandleGetAccount)
	user.Delete("/account", s.users.HandleDeleteAccount)
	user.Get("/credits", s.users.HandleGetCredits)
	user.Get("/transactions", s.users.HandleGetTransactions)
	user.Get("/stats", s.users.HandleGetUsageStats)
	user.Get("/plan", s.users.HandleGetPlan)
}
