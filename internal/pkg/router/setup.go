package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/parleyhq/parley/internal/pkg/middleware"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter wires all route groups. The webhook router stays outside
// bearer auth; the API router is fully behind it.
func InstallRouter(app *fiber.App, verifier middleware.TokenVerifier) {
	setup(app, NewApiRouter(verifier), NewWebhookRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
