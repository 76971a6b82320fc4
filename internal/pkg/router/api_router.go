package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/synthsara/codex/app/controllers"
	"github.com/synthsara/codex/internal/pkg/middleware"
	"github.com/synthsara/codex/internal/pkg/ratelimit"
)

type ApiRouter struct {
	svc Services
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from codex api",
		})
	})

	v1 := api.Group("/v1",
		ratelimit.New(h.svc.LimiterStorage, h.svc.RateLimit, time.Minute),
		middleware.InternalTokenMiddleware(h.svc.Config.InternalToken),
	)

	ents := controllers.NewEntitlementController(h.svc.Entitlements)
	v1.Get("/payers/:id/grants", middleware.RequirePayerParam, ents.HandleListGrants)
	v1.Get("/payers/:id/grants/:contentId", middleware.RequirePayerParam, ents.HandleCheckAccess)
	v1.Post("/payers/:id/grants/:contentId/access", middleware.RequirePayerParam, ents.HandleMarkAccess)
	v1.Get("/payers/:id/tier", middleware.RequirePayerParam, ents.HandleCurrentTier)
	v1.Get("/payers/:id/purchases", middleware.RequirePayerParam, ents.HandleListPurchases)

	checkout := controllers.NewCheckoutController(h.svc.Checkout, h.svc.Billing)
	v1.Post("/checkout", checkout.HandleCreateCheckout)

	stats := controllers.NewBillingController(h.svc.Billing, h.svc.Config, h.svc.Outcomes)
	v1.Get("/stats/webhooks", stats.HandleWebhookStats)
	v1.Delete("/stats/webhooks", stats.HandleResetWebhookStats)
}

func NewApiRouter(svc Services) *ApiRouter {
	return &ApiRouter{svc: svc}
}
