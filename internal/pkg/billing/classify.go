package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v82"

	"github.com/synthsara/codex/app/models"
	"github.com/synthsara/codex/internal/pkg/entitlements"
)

// EventKind is the closed set of provider events the classifier understands.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventCheckoutSessionCompleted
	EventCheckoutAsyncPaymentSucceeded
	EventCheckoutAsyncPaymentFailed
	EventPaymentIntentSucceeded
	EventPaymentIntentCanceled
	EventSubscriptionCreated
	EventSubscriptionUpdated
	EventSubscriptionDeleted
	EventInvoicePaid
)

var eventKinds = map[string]EventKind{
	"checkout.session.completed":               EventCheckoutSessionCompleted,
	"checkout.session.async_payment_succeeded": EventCheckoutAsyncPaymentSucceeded,
	"checkout.session.async_payment_failed":    EventCheckoutAsyncPaymentFailed,
	"payment_intent.succeeded":                 EventPaymentIntentSucceeded,
	"payment_intent.canceled":                  EventPaymentIntentCanceled,
	"customer.subscription.created":            EventSubscriptionCreated,
	"customer.subscription.updated":            EventSubscriptionUpdated,
	"customer.subscription.deleted":            EventSubscriptionDeleted,
	"invoice.paid":                             EventInvoicePaid,
}

// KindOf resolves a provider event type string.
func KindOf(eventType string) EventKind {
	if k, ok := eventKinds[strings.TrimSpace(eventType)]; ok {
		return k
	}
	return EventUnknown
}

func (k EventKind) String() string {
	for name, kind := range eventKinds {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// metadata keys stamped by the checkout initiator
const (
	metaUserID      = "user_id"
	metaProductID   = "product_id"
	metaProductType = "product_type"
	metaTier        = "tier"
)

// Classify maps a verified event onto the internal vocabulary. It never
// touches storage. Events that cannot be fulfilled come back as
// IgnoredClassification so the endpoint can acknowledge them.
func Classify(event *stripe.Event, catalog Catalog) Classification {
	if event == nil {
		return IgnoredClassification{Reason: "nil event", Err: ErrMalformedEvent}
	}
	kind := KindOf(string(event.Type))
	if kind == EventUnknown {
		return IgnoredClassification{
			Reason: "unhandled event type " + string(event.Type),
			Err:    fmt.Errorf("%w: %s", ErrUnknownEventType, event.Type),
		}
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return malformed("event has no data object")
	}

	switch kind {
	case EventCheckoutSessionCompleted, EventCheckoutAsyncPaymentSucceeded, EventCheckoutAsyncPaymentFailed:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return malformed("decode checkout session: " + err.Error())
		}
		return classifyCheckoutSession(event.ID, kind, &cs, catalog)

	case EventPaymentIntentSucceeded, EventPaymentIntentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return malformed("decode payment intent: " + err.Error())
		}
		return classifyPaymentIntent(event.ID, kind, &pi, catalog)

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return malformed("decode subscription: " + err.Error())
		}
		return classifySubscription(event.ID, kind, &sub)

	case EventInvoicePaid:
		return IgnoredClassification{Reason: "invoice paid is informational"}
	}

	return IgnoredClassification{Reason: "unhandled event kind", Err: ErrUnknownEventType}
}

func malformed(reason string) IgnoredClassification {
	return IgnoredClassification{Reason: reason, Err: fmt.Errorf("%w: %s", ErrMalformedEvent, reason)}
}

func classifyCheckoutSession(eventID string, kind EventKind, cs *stripe.CheckoutSession, catalog Catalog) Classification {
	var status string
	switch kind {
	case EventCheckoutAsyncPaymentSucceeded:
		status = models.PurchaseStatusCompleted
	case EventCheckoutAsyncPaymentFailed:
		status = models.PurchaseStatusRefunded
	default:
		status = normalizeCheckoutStatus(cs.PaymentStatus)
	}

	// The payment intent id is shared with payment_intent.* events, so it is
	// the reference whenever the session has one.
	ref := cs.ID
	if cs.PaymentIntent != nil && cs.PaymentIntent.ID != "" {
		ref = cs.PaymentIntent.ID
	}

	p := NormalizedPurchase{
		PaymentReference: ref,
		PayerID:          parsePayerID(cs.Metadata[metaUserID], cs.ClientReferenceID),
		AmountMinorUnits: cs.AmountTotal,
		Currency:         strings.ToLower(string(cs.Currency)),
		Status:           status,
		SourceEventID:    eventID,
	}
	if cs.Customer != nil {
		p.ProviderCustomerID = cs.Customer.ID
	}
	if cs.Subscription != nil {
		p.ProviderSubscriptionID = cs.Subscription.ID
	}

	productType := cs.Metadata[metaProductType]
	if productType == "" && cs.Mode == stripe.CheckoutSessionModeSubscription {
		productType = models.ProductKindMembership
	}
	if reason := describeProduct(&p, productType, cs.Metadata[metaProductID], cs.Metadata[metaTier]); reason != "" {
		return malformed(reason)
	}
	return finishPurchase(p, catalog)
}

func classifyPaymentIntent(eventID string, kind EventKind, pi *stripe.PaymentIntent, catalog Catalog) Classification {
	status := normalizePaymentIntentStatus(pi.Status)
	if pi.Status == "" {
		if kind == EventPaymentIntentSucceeded {
			status = models.PurchaseStatusCompleted
		} else {
			status = models.PurchaseStatusRefunded
		}
	}

	amount := pi.AmountReceived
	if amount <= 0 {
		amount = pi.Amount
	}
	p := NormalizedPurchase{
		PaymentReference: pi.ID,
		PayerID:          parsePayerID(pi.Metadata[metaUserID], ""),
		AmountMinorUnits: amount,
		Currency:         strings.ToLower(string(pi.Currency)),
		Status:           status,
		SourceEventID:    eventID,
	}
	if pi.Customer != nil {
		p.ProviderCustomerID = pi.Customer.ID
	}
	if reason := describeProduct(&p, pi.Metadata[metaProductType], pi.Metadata[metaProductID], pi.Metadata[metaTier]); reason != "" {
		return malformed(reason)
	}
	return finishPurchase(p, catalog)
}

// describeProduct fills the product descriptor and returns a non-empty reason
// when the metadata cannot identify one.
func describeProduct(p *NormalizedPurchase, productType, productID, tier string) string {
	kind, ok := normalizeProductKind(productType)
	if !ok {
		if productType == "" {
			return "missing product_type"
		}
		return "unknown product_type " + productType
	}
	p.ProductKind = kind
	productID = strings.TrimSpace(productID)

	switch kind {
	case models.ProductKindMembership:
		declared, ok := entitlements.ParseTier(tier)
		if !ok {
			declared, ok = entitlements.ParseTier(strings.TrimPrefix(productID, "tier_"))
		}
		if !ok {
			return "membership without a known tier"
		}
		p.Tier = declared
		if productID == "" {
			productID = "tier_" + string(declared)
		}
	case models.ProductKindContentUnlock:
		productID = bareContentID(productID)
	}

	if productID == "" {
		return "missing product_id"
	}
	p.ProductID = productID
	return ""
}

func finishPurchase(p NormalizedPurchase, catalog Catalog) Classification {
	if p.PayerID == 0 {
		return malformed("missing payer id")
	}
	if strings.TrimSpace(p.PaymentReference) == "" {
		return malformed("missing payment reference")
	}
	fillAmount(&p, catalog)
	return PurchaseClassification{Purchase: p}
}

// fillAmount applies the catalog price when the event carried none.
func fillAmount(p *NormalizedPurchase, catalog Catalog) {
	if p.AmountMinorUnits <= 0 && catalog != nil {
		if amount, currency, ok := catalog.PriceOf(p.ProductKind, p.ProductID, p.Tier); ok {
			p.AmountMinorUnits = amount
			if p.Currency == "" {
				p.Currency = currency
			}
		}
	}
	if p.Currency == "" {
		p.Currency = defaultCurrency
	}
}

func classifySubscription(eventID string, kind EventKind, sub *stripe.Subscription) Classification {
	change := NormalizedSubscriptionChange{
		Action:         SubscriptionUpsert,
		SubscriptionID: sub.ID,
		PayerID:        parsePayerID(sub.Metadata[metaUserID], ""),
		Status:         strings.ToLower(string(sub.Status)),
		SourceEventID:  eventID,
	}
	if kind == EventSubscriptionDeleted {
		change.Action = SubscriptionDelete
	}
	if sub.Customer != nil {
		change.CustomerID = sub.Customer.ID
	}
	if t, ok := entitlements.ParseTier(sub.Metadata[metaTier]); ok {
		change.DeclaredTier = t
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.Price != nil && item.Price.ID != "" {
				change.PriceRefs = append(change.PriceRefs, item.Price.ID)
			}
		}
	}

	if change.SubscriptionID == "" {
		return malformed("subscription id missing")
	}
	if change.CustomerID == "" && change.PayerID == 0 {
		return malformed("subscription has neither customer nor user_id")
	}
	return SubscriptionClassification{Change: change}
}

func parsePayerID(candidates ...string) uint {
	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err == nil && id > 0 {
			return uint(id)
		}
	}
	return 0
}
