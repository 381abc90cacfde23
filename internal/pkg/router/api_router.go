package router

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/parleyhq/parley/app/controllers"
	"github.com/parleyhq/parley/internal/pkg/env"
	"github.com/parleyhq/parley/internal/pkg/middleware"
)

type ApiRouter struct {
	verifier middleware.TokenVerifier
}

func NewApiRouter(verifier middleware.TokenVerifier) *ApiRouter {
	return &ApiRouter{verifier: verifier}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Storage: redisstorage.New(redisstorage.Config{
			Host: env.GetEnv("CACHE_HOST", "localhost"),
			Port: mustPort(env.GetEnv("CACHE_PORT", "6379")),
		}),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1", middleware.BearerAuthMiddleware(h.verifier))
	v1.Get("/account", controllers.HandleGetAccount)
	v1.Post("/chat/threads", controllers.HandleCreateThread)
	v1.Post("/chat", controllers.HandleChat)
	v1.Post("/billing/subscriptions", controllers.HandleCreateSubscription)
}

func mustPort(raw string) int {
	var port int
	if _, err := fmt.Sscanf(raw, "%d", &port); err != nil || port <= 0 {
		return 6379
	}
	return port
}
