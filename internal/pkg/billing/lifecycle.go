package billing

import (
	"context"
	"fmt"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/synthsara/codex/app/models"
	"github.com/synthsara/codex/internal/pkg/entitlements"
)

type priceTierResolver interface {
	TierForPrice(priceID string) (entitlements.Tier, bool)
}

// ApplyLifecycle applies a subscription change to the payer it belongs to.
// Writes are skipped when the payer already holds the target state, so
// replaying an event is a no-op.
func (s *Service) ApplyLifecycle(ctx context.Context, change NormalizedSubscriptionChange) (LifecycleResult, error) {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()

	payer, err := s.resolvePayer(ctx, change.CustomerID, change.PayerID)
	if err != nil {
		return LifecycleResult{}, err
	}

	current := entitlements.NormalizeTier(payer.Tier)
	result := LifecycleResult{
		PayerID:        payer.ID,
		Tier:           current,
		SubscriptionID: payer.StripeSubscriptionID,
	}

	// A terminal event for a subscription the payer has already replaced
	// must not downgrade the newer one.
	stale := payer.HasSubscription() && payer.StripeSubscriptionID != change.SubscriptionID

	targetTier := current
	targetSub := payer.StripeSubscriptionID
	switch {
	case change.Action == SubscriptionDelete:
		if stale {
			fiberlog.Infof("[Billing] Ignoring deletion of superseded subscription %s for payer %d", change.SubscriptionID, payer.ID)
			return result, nil
		}
		targetTier = entitlements.DefaultTier
		targetSub = ""
	case isEntitlingStatus(change.Status):
		tier, err := s.declaredTier(ctx, change)
		if err != nil {
			return LifecycleResult{}, err
		}
		if tier != "" {
			targetTier = tier
		} else {
			fiberlog.Warnf("[Billing] Subscription %s declares no resolvable tier, keeping %s", change.SubscriptionID, current)
		}
		targetSub = change.SubscriptionID
	case isTerminalSubscriptionStatus(change.Status):
		if stale {
			fiberlog.Infof("[Billing] Ignoring %s status of superseded subscription %s for payer %d", change.Status, change.SubscriptionID, payer.ID)
			return result, nil
		}
		targetTier = entitlements.DefaultTier
		targetSub = change.SubscriptionID
	default:
		targetSub = change.SubscriptionID
	}

	update := PayerBillingUpdate{}
	if targetTier != current {
		t := string(targetTier)
		update.Tier = &t
	}
	if targetSub != payer.StripeSubscriptionID {
		update.StripeSubscriptionID = &targetSub
	}
	if change.CustomerID != "" && payer.StripeCustomerID != change.CustomerID {
		update.StripeCustomerID = &change.CustomerID
	}

	result.Tier = targetTier
	result.SubscriptionID = targetSub
	if update.empty() {
		return result, nil
	}
	if err := validatePayerUpdate(payer, update); err != nil {
		return LifecycleResult{}, err
	}
	if err := s.repo.UpdatePayerBilling(ctx, payer.ID, update); err != nil {
		return LifecycleResult{}, storageErr("update payer subscription", err)
	}
	result.Changed = true
	fiberlog.Infof("[Billing] Subscription %s (%s, %s): payer %d tier %s -> %s", change.SubscriptionID, change.Action, change.Status, payer.ID, current, targetTier)

	s.invalidate(ctx, payer.ID)
	return result, nil
}

// resolvePayer looks the payer up by provider customer id, falling back to the
// user id stamped in metadata.
func (s *Service) resolvePayer(ctx context.Context, customerID string, payerID uint) (*models.User, error) {
	if customerID != "" {
		payer, err := s.repo.GetPayerByCustomerID(ctx, customerID)
		if err == nil {
			return payer, nil
		}
		if !isNotFound(err) {
			return nil, storageErr("load payer by customer", err)
		}
	}
	if payerID != 0 {
		payer, err := s.repo.GetPayerByID(ctx, payerID)
		if err == nil {
			return payer, nil
		}
		if !isNotFound(err) {
			return nil, storageErr("load payer", err)
		}
	}
	return nil, fmt.Errorf("%w: customer %q user %d", ErrPayerNotFound, customerID, payerID)
}

// declaredTier returns the metadata tier, else the best tier mapped from the
// subscription's prices. Empty means unresolvable.
func (s *Service) declaredTier(ctx context.Context, change NormalizedSubscriptionChange) (entitlements.Tier, error) {
	if change.DeclaredTier != "" {
		return change.DeclaredTier, nil
	}

	var best entitlements.Tier
	seen := make(map[string]struct{}, len(change.PriceRefs))
	for _, ref := range change.PriceRefs {
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}

		m, err := s.repo.FindActiveTierMapping(ctx, models.BillingProviderStripe, ref)
		switch {
		case err == nil:
			if t, ok := entitlements.ParseTier(m.Tier); ok {
				best = bestTier(best, t)
			}
			continue
		case !isNotFound(err):
			return "", storageErr("find tier mapping", err)
		}

		if r, ok := s.catalog.(priceTierResolver); ok {
			if t, ok := r.TierForPrice(ref); ok {
				best = bestTier(best, t)
			}
		}
	}
	return best, nil
}
