package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/proshotai/proshot/app/controllers"
)

// Router installs a set of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Controllers carries every controller the routers need.
type Controllers struct {
	Auth       *controllers.AuthController
	OAuth      *controllers.OAuthController
	Billing    *controllers.BillingController
	Generation *controllers.GenerationController
	User       *controllers.UserController
}

// InstallRouter wires all routes. The HTTP router goes first so the session
// store, the OAuth providers and the global UserContext middleware are in
// place before the API routes that depend on them.
func InstallRouter(app *fiber.App, ctrl Controllers) {
	setup(app, NewHttpRouter(ctrl), NewApiRouter(ctrl))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
