package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/proshotai/proshot/internal/pkg/middleware"
	"github.com/proshotai/proshot/internal/pkg/oauth"
	"github.com/proshotai/proshot/internal/pkg/session"
)

type HttpRouter struct {
	ctrl Controllers
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init oauth providers
	oauth.Setup()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	h.registerAuthRoutes(app)
}

func (h HttpRouter) registerAuthRoutes(app *fiber.App) {
	// Account lifecycle
	app.Post("/register", h.ctrl.Auth.HandleRegister)
	app.Get("/activate", h.ctrl.Auth.HandleActivate)
	app.Post("/login", h.ctrl.Auth.HandleLogin)
	app.Post("/logout", middleware.RequireAuth, h.ctrl.Auth.HandleLogout)
	app.Post("/password/forgot", h.ctrl.Auth.HandleForgotPassword)
	app.Post("/password/reset", h.ctrl.Auth.HandleResetPassword)

	// Social OAuth
	app.Get("/auth/:provider", h.ctrl.OAuth.HandleOAuthLogin)
	app.Get("/auth/:provider/callback", h.ctrl.OAuth.HandleOAuthCallback)
	app.Get("/auth/logout", h.ctrl.OAuth.HandleOAuthLogout)
}

func NewHttpRouter(ctrl Controllers) *HttpRouter {
	return &HttpRouter{ctrl: ctrl}
}
