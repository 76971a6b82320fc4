package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/synthsara/codex/internal/pkg/billing"
)

// CustomerLookup resolves the provider customer already linked to a payer.
type CustomerLookup interface {
	CustomerIDFor(ctx context.Context, payerID uint) (string, error)
}

type CheckoutController struct {
	checkout  billing.CheckoutInitiator
	customers CustomerLookup
}

func NewCheckoutController(checkout billing.CheckoutInitiator, customers CustomerLookup) *CheckoutController {
	return &CheckoutController{checkout: checkout, customers: customers}
}

// HandleCreateCheckout starts a hosted checkout for one catalog product.
func (cc *CheckoutController) HandleCreateCheckout(c *fiber.Ctx) error {
	var req billing.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_payload")
	}
	ctx := c.UserContext()

	if cc.customers != nil && req.PayerID != 0 {
		customerID, err := cc.customers.CustomerIDFor(ctx, req.PayerID)
		switch {
		case errors.Is(err, billing.ErrPayerNotFound):
			return jsonError(c, fiber.StatusNotFound, "payer_not_found")
		case err != nil:
			fiberlog.Errorf("[Checkout] Customer lookup for payer %d failed: %v", req.PayerID, err)
			return jsonError(c, fiber.StatusInternalServerError, "payer_lookup_failed")
		}
		req.CustomerID = customerID
	}

	res, err := cc.checkout.CreateCheckout(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidCheckout):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
		case errors.Is(err, billing.ErrUnknownProduct):
			return jsonError(c, fiber.StatusNotFound, "unknown_product")
		case errors.Is(err, billing.ErrNothingToPay):
			return jsonError(c, fiber.StatusUnprocessableEntity, "product_is_free")
		default:
			return jsonError(c, fiber.StatusBadGateway, "checkout_failed")
		}
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}
