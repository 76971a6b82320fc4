package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	// StripeSignatureHeader carries "t=<unix>,v1=<hex hmac>".
	StripeSignatureHeader = "Stripe-Signature"

	testEventPrefix = "evt_test_"
)

// VerifyStripeWebhook authenticates a raw webhook body against the
// Stripe-Signature header and decodes it. The body must be the exact bytes
// received; it is not parsed before the signature matches.
func VerifyStripeWebhook(payload []byte, signatureHeader, webhookSecret string, tolerance time.Duration) (*stripe.Event, error) {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrSignatureInvalid, StripeSignatureHeader)
	}
	if secret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrSignatureInvalid)
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}

	event, err := webhook.ConstructEventWithOptions(payload, sig, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, fmt.Errorf("%w: event id missing", ErrSignatureInvalid)
	}
	return &event, nil
}

// IsTestEvent reports whether the event was sent from the dashboard's
// "send test webhook" button. Such events never reach the ledger.
func IsTestEvent(event *stripe.Event) bool {
	return event != nil && strings.HasPrefix(event.ID, testEventPrefix)
}
