package billing

import (
	"github.com/synthsara/codex/app/models"
	"github.com/synthsara/codex/internal/pkg/entitlements"
)

// NormalizedPurchase is the provider-agnostic shape of every payment event.
type NormalizedPurchase struct {
	PaymentReference       string `validate:"required,max=255"`
	PayerID                uint   `validate:"required"`
	ProductKind            string `validate:"required,oneof=content_unlock bundle membership service"`
	ProductID              string `validate:"required,max=64"`
	Tier                   entitlements.Tier
	AmountMinorUnits       int64  `validate:"gte=0"`
	Currency               string `validate:"omitempty,len=3"`
	Status                 string `validate:"required,oneof=pending completed refunded"`
	ProviderCustomerID     string
	ProviderSubscriptionID string
	SourceEventID          string
}

func (p NormalizedPurchase) toModel() *models.Purchase {
	return &models.Purchase{
		UserID:                 p.PayerID,
		PaymentReference:       p.PaymentReference,
		ProductKind:            p.ProductKind,
		ProductID:              p.ProductID,
		Tier:                   string(p.Tier),
		AmountMinorUnits:       p.AmountMinorUnits,
		Currency:               p.Currency,
		Status:                 p.Status,
		ProviderCustomerID:     p.ProviderCustomerID,
		ProviderSubscriptionID: p.ProviderSubscriptionID,
		SourceEventID:          p.SourceEventID,
	}
}

type SubscriptionAction int

const (
	SubscriptionUpsert SubscriptionAction = iota + 1
	SubscriptionDelete
)

func (a SubscriptionAction) String() string {
	switch a {
	case SubscriptionUpsert:
		return "upsert"
	case SubscriptionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// NormalizedSubscriptionChange is keyed by payer identity, not by payment
// reference.
type NormalizedSubscriptionChange struct {
	Action         SubscriptionAction
	SubscriptionID string
	CustomerID     string
	// PayerID is the metadata user id, used when the customer is not linked yet.
	PayerID       uint
	Status        string
	DeclaredTier  entitlements.Tier
	PriceRefs     []string
	SourceEventID string
}

// Classification is the closed result of classifying a verified event. The
// only implementations are PurchaseClassification, SubscriptionClassification
// and IgnoredClassification.
type Classification interface {
	classification()
}

type PurchaseClassification struct {
	Purchase NormalizedPurchase
}

type SubscriptionClassification struct {
	Change NormalizedSubscriptionChange
}

// IgnoredClassification is acknowledged without side effects. Err carries
// ErrMalformedEvent or ErrUnknownEventType when the event was dropped for
// that reason; informational events leave it nil.
type IgnoredClassification struct {
	Reason string
	Err    error
}

func (PurchaseClassification) classification()     {}
func (SubscriptionClassification) classification() {}
func (IgnoredClassification) classification()      {}

// Outcome is what HandleEvent did with a verified event.
type Outcome string

const (
	OutcomeGranted            Outcome = "granted"
	OutcomeRecorded           Outcome = "recorded"
	OutcomeDuplicate          Outcome = "duplicate"
	OutcomeSubscriptionSynced Outcome = "subscription_synced"
	OutcomeUnchanged          Outcome = "unchanged"
	OutcomeIgnored            Outcome = "ignored"
	OutcomeTestEvent          Outcome = "test_event"
)

// LedgerResult reports what RecordOnce did. Created is true only for the
// caller whose insert produced the row; Promoted only for the caller whose
// guarded update moved the row forward. Repair is set when a completed row
// was never fulfilled by the delivery that recorded it. InFlight is set when
// such a row is still young enough that its owner may be granting it.
type LedgerResult struct {
	Record   *models.Purchase
	Created  bool
	Promoted bool
	Repair   bool
	InFlight bool
}

// ShouldGrant reports whether this caller owns the grant for the record.
func (r LedgerResult) ShouldGrant() bool {
	if r.Record == nil || !r.Record.IsCompleted() {
		return false
	}
	return r.Created || r.Promoted || r.Repair
}

// LifecycleResult reports the payer state after a subscription change.
type LifecycleResult struct {
	PayerID        uint
	Tier           entitlements.Tier
	SubscriptionID string
	Changed        bool
}

// Result is returned by HandleEvent for logging and receipt bookkeeping.
type Result struct {
	Outcome Outcome
	Kind    EventKind
	Reason  string
	PayerID uint
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
}
