package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/parleyhq/parley/app/controllers"
)

// WebhookRouter carries the billing provider's inbound event feed. No
// bearer auth here: deliveries authenticate via their signature header.
type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhooks/billing", controllers.HandleBillingWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
