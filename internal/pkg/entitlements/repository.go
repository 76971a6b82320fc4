package entitlements

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/synthsara/codex/app/models"
)

// Repository is the read side of the ledger plus first-access bookkeeping.
type Repository interface {
	GetPayer(ctx context.Context, payerID uint) (*models.User, error)
	ListGrants(ctx context.Context, payerID uint) ([]models.EntitlementGrant, error)
	GetGrant(ctx context.Context, payerID uint, contentID string) (*models.EntitlementGrant, error)
	MarkFirstAccess(ctx context.Context, payerID uint, contentID string, at time.Time) (bool, error)
	ListPurchases(ctx context.Context, payerID uint, limit int) ([]models.Purchase, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetPayer(ctx context.Context, payerID uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, payerID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) ListGrants(ctx context.Context, payerID uint) ([]models.EntitlementGrant, error) {
	var grants []models.EntitlementGrant
	err := r.db.WithContext(ctx).
		Where("user_id = ?", payerID).
		Order("granted_at ASC, id ASC").
		Find(&grants).Error
	return grants, err
}

func (r *gormRepository) GetGrant(ctx context.Context, payerID uint, contentID string) (*models.EntitlementGrant, error) {
	var g models.EntitlementGrant
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND content_id = ?", payerID, contentID).
		First(&g).Error
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// MarkFirstAccess stamps the first access time. The bool is true only for the
// call that set it.
func (r *gormRepository) MarkFirstAccess(ctx context.Context, payerID uint, contentID string, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.EntitlementGrant{}).
		Where("user_id = ? AND content_id = ? AND first_accessed_at IS NULL", payerID, contentID).
		UpdateColumn("first_accessed_at", at)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *gormRepository) ListPurchases(ctx context.Context, payerID uint, limit int) ([]models.Purchase, error) {
	var purchases []models.Purchase
	q := r.db.WithContext(ctx).Where("user_id = ?", payerID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&purchases).Error
	return purchases, err
}
