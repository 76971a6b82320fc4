package controllers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"

	"github.com/synthsara/codex/app/models"
	"github.com/synthsara/codex/internal/pkg/billing"
	"github.com/synthsara/codex/internal/pkg/cache"
	"github.com/synthsara/codex/internal/pkg/database"
	"github.com/synthsara/codex/internal/pkg/entitlements"
	"github.com/synthsara/codex/internal/pkg/metrics/counter"
	"github.com/synthsara/codex/internal/pkg/middleware"
)

const testWebhookSecret = "whsec_controller_test"

type testEnv struct {
	db      *gorm.DB
	app     *fiber.App
	billing *billing.Service
	ents    *entitlements.Service
	rdb     *redis.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "controllers.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, database.AutoMigrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	catalog := billing.DefaultCatalog()
	ents := entitlements.NewServiceFromDB(db, cache.NewStore(rdb, "codex"), time.Minute, catalog.FreeContentIDs()...)
	bs := billing.NewServiceFromDB(db, billing.WithCatalog(catalog), billing.WithInvalidator(ents))

	cfg := billing.Config{WebhookSecret: testWebhookSecret, WebhookTolerance: 5 * time.Minute}
	app := fiber.New()
	bc := NewBillingController(bs, cfg, counter.New(rdb, counter.WebhookOutcomesKey))
	app.Post("/webhook", bc.HandleStripeWebhook)
	app.Get("/stats/webhooks", bc.HandleWebhookStats)
	app.Delete("/stats/webhooks", bc.HandleResetWebhookStats)

	ec := NewEntitlementController(ents)
	app.Get("/payers/:id/grants", middleware.RequirePayerParam, ec.HandleListGrants)
	app.Get("/payers/:id/grants/:contentId", middleware.RequirePayerParam, ec.HandleCheckAccess)
	app.Post("/payers/:id/grants/:contentId/access", middleware.RequirePayerParam, ec.HandleMarkAccess)
	app.Get("/payers/:id/tier", middleware.RequirePayerParam, ec.HandleCurrentTier)
	app.Get("/payers/:id/purchases", middleware.RequirePayerParam, ec.HandleListPurchases)

	return &testEnv{db: db, app: app, billing: bs, ents: ents, rdb: rdb}
}

func (e *testEnv) createPayer(t *testing.T, id uint, tier, customerID string) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.User{
		ID:               id,
		Name:             "payer",
		Email:            "payer@example.com",
		Tier:             tier,
		StripeCustomerID: customerID,
	}).Error)
}

func (e *testEnv) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

func (e *testEnv) do(t *testing.T, req *http.Request) (int, string) {
	t.Helper()
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode, readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func eventPayload(id, eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":1700000000,"data":{"object":%s}}`, id, eventType, object))
}

func checkoutObject(sessionID, paymentIntent, paymentStatus string, amount int64, metadata string) string {
	return fmt.Sprintf(`{"id":%q,"object":"checkout.session","mode":"payment","payment_status":%q,"payment_intent":%q,"amount_total":%d,"currency":"usd","customer":"cus_42","metadata":%s}`,
		sessionID, paymentStatus, paymentIntent, amount, metadata)
}

func signedWebhook(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(fiber.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(billing.StripeSignatureHeader, signed.Header)
	return req
}
