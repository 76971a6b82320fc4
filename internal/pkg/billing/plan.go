package billing

import (
	"strings"

	"github.com/stripe/stripe-go/v82"

	"github.com/synthsara/codex/app/models"
	"github.com/synthsara/codex/internal/pkg/entitlements"
)

// normalizeCheckoutStatus maps a checkout session payment status. Unknown
// values stay pending; nothing auto-completes on a status we do not know.
func normalizeCheckoutStatus(status stripe.CheckoutSessionPaymentStatus) string {
	switch strings.ToLower(strings.TrimSpace(string(status))) {
	case "paid", "no_payment_required":
		return models.PurchaseStatusCompleted
	default:
		return models.PurchaseStatusPending
	}
}

func normalizePaymentIntentStatus(status stripe.PaymentIntentStatus) string {
	switch strings.ToLower(strings.TrimSpace(string(status))) {
	case "succeeded":
		return models.PurchaseStatusCompleted
	case "canceled":
		return models.PurchaseStatusRefunded
	default:
		return models.PurchaseStatusPending
	}
}

// allowedPredecessors lists the statuses a row may hold for a transition to
// target to apply. Refunded is terminal.
func allowedPredecessors(target string) []string {
	switch target {
	case models.PurchaseStatusCompleted:
		return []string{models.PurchaseStatusPending}
	case models.PurchaseStatusRefunded:
		return []string{models.PurchaseStatusPending, models.PurchaseStatusCompleted}
	default:
		return nil
	}
}

func normalizeProductKind(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "scroll", "content_unlock", "contentunlock":
		return models.ProductKindContentUnlock, true
	case "artifact", "bundle":
		return models.ProductKindBundle, true
	case "membership", "tier", "subscription":
		return models.ProductKindMembership, true
	case "ritual", "service":
		return models.ProductKindService, true
	default:
		return "", false
	}
}

// bareContentID strips a known namespace prefix from a product id.
func bareContentID(productID string) string {
	return entitlements.ContentID(productID)
}

func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing", "past_due":
		return true
	default:
		return false
	}
}

func isTerminalSubscriptionStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "canceled", "unpaid", "incomplete_expired", "paused":
		return true
	default:
		return false
	}
}

// bestTier keeps the higher ranked of two tiers.
func bestTier(a, b entitlements.Tier) entitlements.Tier {
	if a == "" || entitlements.Rank(b) > entitlements.Rank(a) {
		return b
	}
	return a
}
