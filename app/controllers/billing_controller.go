package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/synthsara/codex/app/models"
	"github.com/synthsara/codex/internal/pkg/billing"
	"github.com/synthsara/codex/internal/pkg/metrics/counter"
)

const webhookTimeout = 15 * time.Second

type BillingController struct {
	svc      *billing.Service
	cfg      billing.Config
	outcomes *counter.Counter
}

func NewBillingController(svc *billing.Service, cfg billing.Config, outcomes *counter.Counter) *BillingController {
	return &BillingController{svc: svc, cfg: cfg, outcomes: outcomes}
}

func (bc *BillingController) count(ctx context.Context, outcome string) {
	if err := bc.outcomes.Add(ctx, outcome); err != nil {
		fiberlog.Warnf("[Webhook] Outcome counter unavailable: %v", err)
	}
}

// HandleStripeWebhook verifies, records and reconciles one Stripe delivery.
// Only signature failures (400) and retryable failures (500) are non-2xx.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get(billing.StripeSignatureHeader)

	event, err := billing.VerifyStripeWebhook(rawBody, signature, bc.cfg.WebhookSecret, bc.cfg.WebhookTolerance)
	if err != nil {
		fiberlog.Warnf("[Webhook] Rejected delivery from %s: %v", c.IP(), err)
		bc.count(c.UserContext(), "invalid_signature")
		return jsonError(c, fiber.StatusBadRequest, "invalid_signature")
	}
	if billing.IsTestEvent(event) {
		fiberlog.Infof("[Webhook] Test event %s verified", event.ID)
		bc.count(c.UserContext(), string(billing.OutcomeTestEvent))
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "verified": true})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	created, stored, err := bc.svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(rawBody),
	})
	if err != nil {
		fiberlog.Errorf("[Webhook] Could not record event %s: %v", event.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "webhook_persist_failed")
	}
	if !created && stored.Succeeded() {
		bc.count(ctx, "duplicate_delivery")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	result, err := bc.svc.HandleEvent(ctx, event)
	if markErr := bc.svc.MarkWebhookProcessed(ctx, stored.ID, result.Outcome, err); markErr != nil {
		fiberlog.Warnf("[Webhook] Could not mark event %s processed: %v", event.ID, markErr)
	}
	if err != nil {
		if billing.Retryable(err) {
			fiberlog.Errorf("[Webhook] Event %s (%s) failed, provider will retry: %v", event.ID, event.Type, err)
			bc.count(ctx, "failed")
			return jsonError(c, fiber.StatusInternalServerError, "processing_failed")
		}
		// Anything else is not retryable; acknowledge so the provider stops.
		fiberlog.Warnf("[Webhook] Event %s (%s) dropped: %v", event.ID, event.Type, err)
		bc.count(ctx, "dropped")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "ignored": true})
	}

	bc.count(ctx, string(result.Outcome))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "outcome": result.Outcome})
}

// HandleWebhookStats reports how deliveries have been resolved so far.
func (bc *BillingController) HandleWebhookStats(c *fiber.Ctx) error {
	snap, err := bc.outcomes.Snapshot(c.UserContext())
	if err != nil {
		fiberlog.Errorf("[Webhook] Reading outcome counters failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "stats_unavailable")
	}
	return c.JSON(fiber.Map{"outcomes": snap})
}

// HandleResetWebhookStats zeroes the outcome counters.
func (bc *BillingController) HandleResetWebhookStats(c *fiber.Ctx) error {
	if err := bc.outcomes.Reset(c.UserContext()); err != nil {
		fiberlog.Errorf("[Webhook] Resetting outcome counters failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "stats_unavailable")
	}
	fiberlog.Infof("[Webhook] Outcome counters reset by %s", c.IP())
	return c.SendStatus(fiber.StatusNoContent)
}
