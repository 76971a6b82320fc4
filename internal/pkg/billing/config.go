package billing

import (
	"strings"
	"time"

	"github.com/synthsara/codex/internal/pkg/env"
)

// Config holds the Stripe and ledger settings.
type Config struct {
	SecretKey        string
	WebhookSecret    string
	WebhookTolerance time.Duration
	StorageTimeout   time.Duration
	PublicDomain     string
	// InternalToken guards the service-to-service read and checkout API.
	InternalToken string
}

// ConfigFromEnv reads the billing settings through the env package.
func ConfigFromEnv() Config {
	return Config{
		SecretKey:        strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret:    strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		WebhookTolerance: env.GetDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
		StorageTimeout:   env.GetDuration("BILLING_STORAGE_TIMEOUT", defaultStorageTimeout),
		PublicDomain:     strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:3000"), "/"),
		InternalToken:    strings.TrimSpace(env.GetEnv("INTERNAL_API_TOKEN", "")),
	}
}

func (c Config) SuccessURL() string {
	return c.PublicDomain + "/?payment=success&session_id={CHECKOUT_SESSION_ID}"
}

func (c Config) CancelURL() string {
	return c.PublicDomain + "/?payment=canceled"
}
