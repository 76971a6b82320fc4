package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/synthsara/codex/app/models"
)

const (
	defaultStorageTimeout = 5 * time.Second
	// A completed row left ungranted longer than this is re-granted by the
	// next delivery of the same payment.
	defaultGrantRepairAfter = time.Minute
)

// Invalidator drops cached entitlement reads for a payer.
type Invalidator interface {
	InvalidatePayer(ctx context.Context, payerID uint) error
}

// Service reconciles verified provider events into the purchase ledger and
// payer entitlements.
type Service struct {
	repo             Repository
	catalog          Catalog
	invalidator      Invalidator
	validate         *validator.Validate
	storageTimeout   time.Duration
	grantRepairAfter time.Duration
}

type Option func(*Service)

func WithCatalog(c Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

func WithStorageTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storageTimeout = d
		}
	}
}

func WithGrantRepairAfter(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.grantRepairAfter = d
		}
	}
}

func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:             repo,
		catalog:          DefaultCatalog(),
		validate:         validator.New(),
		storageTimeout:   defaultStorageTimeout,
		grantRepairAfter: defaultGrantRepairAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

func (s *Service) Catalog() Catalog {
	return s.catalog
}

func (s *Service) storageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storageTimeout)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// HandleEvent runs a verified event through classification and the ledger.
// Only retryable failures (see Retryable) are returned as errors; everything
// else is reported through the result so the caller can acknowledge it.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (Result, error) {
	if event == nil {
		return Result{Outcome: OutcomeIgnored, Reason: "empty event"}, nil
	}
	if IsTestEvent(event) {
		return Result{Outcome: OutcomeTestEvent}, nil
	}
	kind := KindOf(string(event.Type))

	switch c := Classify(event, s.catalog).(type) {
	case PurchaseClassification:
		res, err := s.RecordOnce(ctx, c.Purchase)
		if err != nil {
			if errors.Is(err, ErrMalformedEvent) {
				fiberlog.Warnf("[Billing] Dropping event %s: %v", event.ID, err)
				return Result{Outcome: OutcomeIgnored, Kind: kind, Reason: err.Error()}, nil
			}
			return Result{Kind: kind}, err
		}
		out := Result{Kind: kind, PayerID: res.Record.UserID}
		if res.Created || res.Promoted {
			s.linkCustomer(ctx, res.Record)
		}
		if res.InFlight {
			return out, fmt.Errorf("%w: purchase %s", ErrGrantInFlight, res.Record.PaymentReference)
		}
		if !res.ShouldGrant() {
			if res.Created || res.Promoted {
				out.Outcome = OutcomeRecorded
			} else {
				out.Outcome = OutcomeDuplicate
			}
			return out, nil
		}
		if err := s.Grant(ctx, *res.Record); err != nil {
			if errors.Is(err, ErrPayerNotFound) {
				fiberlog.Warnf("[Billing] Purchase %s has no payer %d: %v", res.Record.PaymentReference, res.Record.UserID, err)
				out.Outcome = OutcomeIgnored
				out.Reason = err.Error()
				return out, nil
			}
			return out, err
		}
		out.Outcome = OutcomeGranted
		return out, nil

	case SubscriptionClassification:
		lr, err := s.ApplyLifecycle(ctx, c.Change)
		if err != nil {
			if errors.Is(err, ErrPayerNotFound) {
				fiberlog.Warnf("[Billing] Subscription %s has no local payer: %v", c.Change.SubscriptionID, err)
				return Result{Outcome: OutcomeIgnored, Kind: kind, Reason: err.Error()}, nil
			}
			return Result{Kind: kind}, err
		}
		out := Result{Outcome: OutcomeUnchanged, Kind: kind, PayerID: lr.PayerID}
		if lr.Changed {
			out.Outcome = OutcomeSubscriptionSynced
		}
		return out, nil

	case IgnoredClassification:
		if c.Err != nil {
			fiberlog.Warnf("[Billing] Ignoring event %s (%s): %v", event.ID, event.Type, c.Err)
		} else {
			fiberlog.Infof("[Billing] Event %s (%s) acknowledged: %s", event.ID, event.Type, c.Reason)
		}
		return Result{Outcome: OutcomeIgnored, Kind: kind, Reason: c.Reason}, nil
	}

	return Result{Outcome: OutcomeIgnored, Kind: kind}, nil
}

// RecordOnce inserts the purchase unless its payment reference is already in
// the ledger. An existing row is moved forward only along
// pending->completed, pending->refunded and completed->refunded.
func (s *Service) RecordOnce(ctx context.Context, in NormalizedPurchase) (LedgerResult, error) {
	in.PaymentReference = strings.TrimSpace(in.PaymentReference)
	in.ProductID = strings.TrimSpace(in.ProductID)
	fillAmount(&in, s.catalog)
	if err := s.validate.Struct(in); err != nil {
		return LedgerResult{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	ctx, cancel := s.storageContext(ctx)
	defer cancel()

	created, stored, err := s.repo.CreatePurchaseIfNotExists(ctx, in.toModel())
	if err != nil {
		return LedgerResult{}, storageErr("record purchase", err)
	}
	res := LedgerResult{Record: stored, Created: created}
	if created {
		fiberlog.Infof("[Billing] Recorded purchase %s (%s/%s) for payer %d as %s", stored.PaymentReference, stored.ProductKind, stored.ProductID, stored.UserID, stored.Status)
		return res, nil
	}

	if stored.Status != in.Status {
		won, err := s.repo.TransitionPurchaseStatus(ctx, in.PaymentReference, in.Status, allowedPredecessors(in.Status))
		if err != nil {
			return LedgerResult{}, storageErr("transition purchase", err)
		}
		if won {
			fiberlog.Infof("[Billing] Purchase %s moved %s -> %s", stored.PaymentReference, stored.Status, in.Status)
			if stored, err = s.repo.GetPurchaseByReference(ctx, in.PaymentReference); err != nil {
				return LedgerResult{}, storageErr("reload purchase", err)
			}
			res.Record = stored
			res.Promoted = true
			return res, nil
		}
	}

	if stored.NeedsGrant() {
		if time.Since(stored.UpdatedAt) >= s.grantRepairAfter {
			res.Repair = true
			fiberlog.Warnf("[Billing] Purchase %s is completed but was never granted, re-granting", stored.PaymentReference)
		} else {
			res.InFlight = true
		}
	}
	return res, nil
}

// Grant fulfils a completed purchase. Callers must only pass records for
// which the ledger reported ShouldGrant.
func (s *Service) Grant(ctx context.Context, record models.Purchase) error {
	if !record.IsCompleted() {
		return fmt.Errorf("purchase %s is %s, not completed", record.PaymentReference, record.Status)
	}

	ctx, cancel := s.storageContext(ctx)
	defer cancel()

	switch {
	case record.ProductKind == models.ProductKindMembership:
		if err := s.grantMembership(ctx, record); err != nil {
			return err
		}
	case record.GrantsContent():
		ids := s.contentIDsFor(record)
		n, err := s.repo.GrantContent(ctx, record.UserID, ids, record.ID)
		if err != nil {
			return storageErr("grant content", err)
		}
		fiberlog.Infof("[Billing] Granted %d/%d content items to payer %d for %s", n, len(ids), record.UserID, record.PaymentReference)
	default:
		return fmt.Errorf("%w: product kind %q", ErrMalformedEvent, record.ProductKind)
	}

	if record.ID != 0 {
		if err := s.repo.MarkPurchaseGranted(ctx, record.ID); err != nil {
			return storageErr("mark purchase granted", err)
		}
	}
	s.invalidate(ctx, record.UserID)
	return nil
}

func (s *Service) contentIDsFor(record models.Purchase) []string {
	switch record.ProductKind {
	case models.ProductKindContentUnlock:
		return []string{bareContentID(record.ProductID)}
	case models.ProductKindBundle:
		if s.catalog != nil {
			if ids := s.catalog.BundleContents(record.ProductID); len(ids) > 0 {
				return ids
			}
		}
	}
	return []string{record.ProductID}
}

func (s *Service) grantMembership(ctx context.Context, record models.Purchase) error {
	payer, err := s.repo.GetPayerByID(ctx, record.UserID)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: id %d", ErrPayerNotFound, record.UserID)
		}
		return storageErr("load payer", err)
	}

	update := PayerBillingUpdate{}
	if record.Tier != "" && payer.Tier != record.Tier {
		update.Tier = &record.Tier
	}
	if record.ProviderCustomerID != "" && payer.StripeCustomerID != record.ProviderCustomerID {
		update.StripeCustomerID = &record.ProviderCustomerID
	}
	if record.ProviderSubscriptionID != "" && payer.StripeSubscriptionID != record.ProviderSubscriptionID {
		update.StripeSubscriptionID = &record.ProviderSubscriptionID
	}
	if err := validatePayerUpdate(payer, update); err != nil {
		return err
	}
	if err := s.repo.UpdatePayerBilling(ctx, payer.ID, update); err != nil {
		return storageErr("update payer membership", err)
	}
	fiberlog.Infof("[Billing] Payer %d membership set to %s", payer.ID, record.Tier)
	return nil
}

// validatePayerUpdate rejects an update that would leave the payer row
// invalid, e.g. an unknown tier.
func validatePayerUpdate(payer *models.User, update PayerBillingUpdate) error {
	if update.empty() {
		return nil
	}
	next := update.applyTo(*payer)
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: payer %d: %v", ErrMalformedEvent, payer.ID, err)
	}
	return nil
}

// linkCustomer stores the provider customer id on the payer so later
// subscription events can find them. Failures are logged only.
func (s *Service) linkCustomer(ctx context.Context, record *models.Purchase) {
	if record == nil || record.ProviderCustomerID == "" {
		return
	}
	ctx, cancel := s.storageContext(ctx)
	defer cancel()

	payer, err := s.repo.GetPayerByID(ctx, record.UserID)
	if err != nil {
		if !isNotFound(err) {
			fiberlog.Warnf("[Billing] Could not load payer %d for customer linkage: %v", record.UserID, err)
		}
		return
	}
	if payer.StripeCustomerID == record.ProviderCustomerID {
		return
	}
	if err := s.repo.UpdatePayerBilling(ctx, payer.ID, PayerBillingUpdate{StripeCustomerID: &record.ProviderCustomerID}); err != nil {
		fiberlog.Warnf("[Billing] Could not link customer %s to payer %d: %v", record.ProviderCustomerID, payer.ID, err)
	}
}

// CustomerIDFor returns the provider customer linked to a payer, if any.
func (s *Service) CustomerIDFor(ctx context.Context, payerID uint) (string, error) {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()

	payer, err := s.repo.GetPayerByID(ctx, payerID)
	if err != nil {
		if isNotFound(err) {
			return "", ErrPayerNotFound
		}
		return "", storageErr("load payer", err)
	}
	return payer.StripeCustomerID, nil
}

func (s *Service) invalidate(ctx context.Context, payerID uint) {
	if s.invalidator == nil || payerID == 0 {
		return
	}
	if err := s.invalidator.InvalidatePayer(ctx, payerID); err != nil {
		fiberlog.Warnf("[Billing] Cache invalidation for payer %d failed: %v", payerID, err)
	}
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	ctx, cancel := s.storageContext(ctx)
	defer cancel()

	event := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
	}
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(ctx, event)
	if err != nil {
		return false, nil, storageErr("record webhook event", err)
	}
	return created, stored, nil
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, outcome Outcome, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}

	ctx, cancel := s.storageContext(ctx)
	defer cancel()
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, string(outcome), errMsg)
}
