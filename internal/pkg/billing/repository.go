package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/synthsara/codex/app/models"
)

// PayerBillingUpdate carries the payer columns billing may change. Nil
// fields are left untouched.
type PayerBillingUpdate struct {
	Tier                 *string
	StripeCustomerID     *string
	StripeSubscriptionID *string
}

func (u PayerBillingUpdate) empty() bool {
	return u.Tier == nil && u.StripeCustomerID == nil && u.StripeSubscriptionID == nil
}

// applyTo returns a copy of payer with the update applied.
func (u PayerBillingUpdate) applyTo(payer models.User) models.User {
	if u.Tier != nil {
		payer.Tier = *u.Tier
	}
	if u.StripeCustomerID != nil {
		payer.StripeCustomerID = *u.StripeCustomerID
	}
	if u.StripeSubscriptionID != nil {
		payer.StripeSubscriptionID = *u.StripeSubscriptionID
	}
	return payer
}

// Repository provides DB operations used by the billing service.
type Repository interface {
	CreatePurchaseIfNotExists(ctx context.Context, purchase *models.Purchase) (bool, *models.Purchase, error)
	TransitionPurchaseStatus(ctx context.Context, paymentReference, status string, from []string) (bool, error)
	GetPurchaseByReference(ctx context.Context, paymentReference string) (*models.Purchase, error)
	MarkPurchaseGranted(ctx context.Context, purchaseID uint) error
	GrantContent(ctx context.Context, userID uint, contentIDs []string, purchaseID uint) (int64, error)
	GetPayerByID(ctx context.Context, userID uint) (*models.User, error)
	GetPayerByCustomerID(ctx context.Context, customerID string) (*models.User, error)
	UpdatePayerBilling(ctx context.Context, userID uint, update PayerBillingUpdate) error
	FindActiveTierMapping(ctx context.Context, provider, providerPriceID string) (*models.TierPriceMapping, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// CreatePurchaseIfNotExists inserts the purchase unless a row with the same
// payment reference exists. The bool is true only for the inserting caller.
func (r *gormRepository) CreatePurchaseIfNotExists(ctx context.Context, purchase *models.Purchase) (bool, *models.Purchase, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_reference"}},
		DoNothing: true,
	}).Create(purchase)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := r.GetPurchaseByReference(ctx, purchase.PaymentReference)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

// TransitionPurchaseStatus moves a row to status only if it currently holds
// one of from. The bool is true only for the caller whose update applied.
func (r *gormRepository) TransitionPurchaseStatus(ctx context.Context, paymentReference, status string, from []string) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	tx := r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("payment_reference = ? AND status IN ?", paymentReference, from).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *gormRepository) GetPurchaseByReference(ctx context.Context, paymentReference string) (*models.Purchase, error) {
	var p models.Purchase
	err := r.db.WithContext(ctx).Where("payment_reference = ?", paymentReference).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) MarkPurchaseGranted(ctx context.Context, purchaseID uint) error {
	return r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("id = ? AND granted_at IS NULL", purchaseID).
		UpdateColumn("granted_at", time.Now()).Error
}

// GrantContent inserts one grant per content id, skipping pairs that already
// exist. It returns the number of new grants.
func (r *gormRepository) GrantContent(ctx context.Context, userID uint, contentIDs []string, purchaseID uint) (int64, error) {
	if len(contentIDs) == 0 {
		return 0, nil
	}
	now := time.Now()
	grants := make([]models.EntitlementGrant, 0, len(contentIDs))
	for _, id := range contentIDs {
		grants = append(grants, models.EntitlementGrant{
			UserID:     userID,
			ContentID:  id,
			PurchaseID: purchaseID,
			GrantedAt:  now,
		})
	}
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "content_id"},
		},
		DoNothing: true,
	}).Create(&grants)
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) GetPayerByID(ctx context.Context, userID uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) GetPayerByCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	if customerID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var u models.User
	if err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) UpdatePayerBilling(ctx context.Context, userID uint, update PayerBillingUpdate) error {
	if update.empty() {
		return nil
	}
	updates := map[string]interface{}{}
	if update.Tier != nil {
		updates["tier"] = *update.Tier
	}
	if update.StripeCustomerID != nil {
		updates["stripe_customer_id"] = *update.StripeCustomerID
	}
	if update.StripeSubscriptionID != nil {
		updates["stripe_subscription_id"] = *update.StripeSubscriptionID
	}
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
}

func (r *gormRepository) FindActiveTierMapping(ctx context.Context, provider, providerPriceID string) (*models.TierPriceMapping, error) {
	var m models.TierPriceMapping
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_price_id = ? AND is_active = ?", provider, providerPriceID, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	if !created {
		if err := db.Model(&models.WebhookEvent{}).
			Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
			UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
			return false, nil, err
		}
	}

	var stored models.WebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"outcome":          outcome,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
