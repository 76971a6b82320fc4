package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/synthsara/codex/internal/pkg/billing"
	"github.com/synthsara/codex/internal/pkg/cache"
	"github.com/synthsara/codex/internal/pkg/database"
	"github.com/synthsara/codex/internal/pkg/entitlements"
	"github.com/synthsara/codex/internal/pkg/env"
	"github.com/synthsara/codex/internal/pkg/metrics/counter"
	"github.com/synthsara/codex/internal/pkg/ratelimit"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Services are the collaborators the routes are built from.
type Services struct {
	Config         billing.Config
	Billing        *billing.Service
	Entitlements   *entitlements.Service
	Checkout       billing.CheckoutInitiator
	Outcomes       *counter.Counter
	LimiterStorage fiber.Storage
	RateLimit      int
}

// NewServices wires billing and entitlements onto one database and cache.
func NewServices(db *gorm.DB, rdb *redis.Client, cfg billing.Config) Services {
	catalog := billing.DefaultCatalog()
	ents := entitlements.NewServiceFromDB(
		db,
		cache.NewStore(rdb, "codex"),
		env.GetDuration("ENTITLEMENT_CACHE_TTL", 5*time.Minute),
		catalog.FreeContentIDs()...,
	)
	return Services{
		Config: cfg,
		Billing: billing.NewServiceFromDB(db,
			billing.WithCatalog(catalog),
			billing.WithStorageTimeout(cfg.StorageTimeout),
			billing.WithInvalidator(ents),
		),
		Entitlements: ents,
		Checkout:     billing.NewStripeCheckout(cfg, catalog),
		Outcomes:     counter.New(rdb, counter.WebhookOutcomesKey),
		RateLimit:    env.GetInt("API_RATE_LIMIT", 60),
	}
}

func InstallRouter(app *fiber.App) {
	svc := NewServices(database.GetDB(), cache.GetClient(), billing.ConfigFromEnv())
	svc.LimiterStorage = ratelimit.NewStorage()

	// The webhook lives outside /api/v1: no limiter, no internal token.
	setup(app, NewWebhookRouter(svc), NewApiRouter(svc))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
