package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusRefunded  = "refunded"
)

const (
	ProductKindContentUnlock = "content_unlock"
	ProductKindBundle        = "bundle"
	ProductKindMembership    = "membership"
	ProductKindService       = "service"
)

// Purchase is one ledger row per provider payment reference. Rows are never
// deleted; only the status column moves forward.
type Purchase struct {
	ID                     uint       `gorm:"primaryKey" json:"-"`
	UUID                   string     `gorm:"type:char(36);uniqueIndex" json:"id"`
	UserID                 uint       `gorm:"not null;index" json:"user_id"`
	PaymentReference       string     `gorm:"type:varchar(255);not null;index:ux_purchases_payment_reference,unique" json:"payment_reference"`
	ProductKind            string     `gorm:"type:varchar(32);not null" json:"product_kind"`
	ProductID              string     `gorm:"type:varchar(64);not null" json:"product_id"`
	Tier                   string     `gorm:"type:varchar(32);not null;default:''" json:"tier,omitempty"`
	AmountMinorUnits       int64      `gorm:"not null;default:0" json:"amount_minor_units"`
	Currency               string     `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Status                 string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ProviderCustomerID     string     `gorm:"type:varchar(255);not null;default:''" json:"-"`
	ProviderSubscriptionID string     `gorm:"type:varchar(255);not null;default:''" json:"-"`
	SourceEventID          string     `gorm:"type:varchar(255);not null;default:''" json:"-"`
	GrantedAt              *time.Time `gorm:"type:timestamp;default:null" json:"granted_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns the public id.
func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}
	return nil
}

// IsCompleted reports whether the payment was captured.
func (p *Purchase) IsCompleted() bool {
	return p != nil && p.Status == PurchaseStatusCompleted
}

// NeedsGrant reports whether a completed purchase has not been fulfilled yet.
func (p *Purchase) NeedsGrant() bool {
	return p.IsCompleted() && p.GrantedAt == nil
}

// GrantsContent reports whether the product kind produces content grants.
func (p *Purchase) GrantsContent() bool {
	switch p.ProductKind {
	case ProductKindContentUnlock, ProductKindBundle, ProductKindService:
		return true
	default:
		return false
	}
}
