package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/synthsara/codex/app/models"
	"github.com/synthsara/codex/internal/pkg/entitlements"
)

var (
	ErrInvalidCheckout = errors.New("billing: invalid checkout request")
	ErrUnknownProduct  = errors.New("billing: unknown product")
	ErrNothingToPay    = errors.New("billing: product is free")
	ErrCheckoutFailed  = errors.New("billing: checkout session could not be created")
)

// CheckoutRequest asks for a hosted checkout page for one product.
type CheckoutRequest struct {
	PayerID     uint   `json:"user_id" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email,max=320"`
	ProductType string `json:"product_type" validate:"required,oneof=scroll content_unlock artifact bundle membership ritual service"`
	ProductID   string `json:"product_id" validate:"max=64"`
	Tier        string `json:"tier" validate:"omitempty,oneof=flamewalker harmonizer architect"`
	CustomerID  string `json:"-"`
}

type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CheckoutInitiator creates the provider session whose payment reference
// later comes back through webhooks.
type CheckoutInitiator interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error)
}

type sessionCreator func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

// StripeCheckout creates Stripe Checkout sessions. Every session carries the
// product descriptor in its own metadata and in the metadata of the payment
// intent or subscription it spawns.
type StripeCheckout struct {
	cfg        Config
	catalog    Catalog
	validate   *validator.Validate
	newSession sessionCreator
}

func NewStripeCheckout(cfg Config, catalog Catalog) *StripeCheckout {
	client := &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey}
	return &StripeCheckout{
		cfg:        cfg,
		catalog:    catalog,
		validate:   validator.New(),
		newSession: client.New,
	}
}

func (sc *StripeCheckout) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	if err := sc.validate.Struct(req); err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrInvalidCheckout, err)
	}
	kind, _ := normalizeProductKind(req.ProductType)

	productID := req.ProductID
	var tier entitlements.Tier
	if kind == models.ProductKindMembership {
		t, ok := entitlements.ParseTier(req.Tier)
		if !ok || !t.IsPaid() {
			return CheckoutResult{}, fmt.Errorf("%w: membership tier %q", ErrUnknownProduct, req.Tier)
		}
		tier = t
		productID = "tier_" + string(t)
	} else if kind == models.ProductKindContentUnlock {
		productID = bareContentID(productID)
	}

	item, ok := sc.catalog.Describe(kind, productID, tier)
	if !ok {
		return CheckoutResult{}, fmt.Errorf("%w: %s %q", ErrUnknownProduct, kind, productID)
	}
	if item.AmountMinorUnits <= 0 {
		return CheckoutResult{}, fmt.Errorf("%w: %s %q", ErrNothingToPay, kind, productID)
	}

	meta := map[string]string{
		metaUserID:      strconv.FormatUint(uint64(req.PayerID), 10),
		metaProductID:   productID,
		metaProductType: req.ProductType,
	}
	if tier != "" {
		meta[metaTier] = string(tier)
	}

	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(item.Currency),
		UnitAmount: stripe.Int64(item.AmountMinorUnits),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		},
	}
	params := &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(sc.cfg.SuccessURL()),
		CancelURL:         stripe.String(sc.cfg.CancelURL()),
		ClientReferenceID: stripe.String(meta[metaUserID]),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{PriceData: priceData, Quantity: stripe.Int64(1)},
		},
	}
	params.Context = ctx
	for k, v := range meta {
		params.AddMetadata(k, v)
	}

	if kind == models.ProductKindMembership {
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(item.Interval),
		}
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: copyMeta(meta)}
	} else {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: copyMeta(meta)}
	}

	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	cs, err := sc.newSession(params)
	if err != nil {
		fiberlog.Errorf("[Checkout] Stripe session for payer %d (%s/%s) failed: %v", req.PayerID, kind, productID, err)
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
	}
	fiberlog.Infof("[Checkout] Created session %s for payer %d (%s/%s)", cs.ID, req.PayerID, kind, productID)
	return CheckoutResult{SessionID: cs.ID, URL: cs.URL}, nil
}

func copyMeta(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
