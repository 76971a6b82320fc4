package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/synthsara/codex/app/controllers"
)

type WebhookRouter struct {
	billing *controllers.BillingController
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/api/stripe/webhook", h.billing.HandleStripeWebhook)
}

func NewWebhookRouter(svc Services) *WebhookRouter {
	return &WebhookRouter{billing: controllers.NewBillingController(svc.Billing, svc.Config, svc.Outcomes)}
}
