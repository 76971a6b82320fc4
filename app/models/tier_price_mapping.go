package models

import "time"

// TierPriceMapping maps a provider price reference to an internal membership
// tier. Used when a subscription event does not declare its tier.
type TierPriceMapping struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"type:varchar(20);not null;index:ux_tier_price_mappings_ref,unique,priority:1" json:"provider"`
	ProviderPriceID string    `gorm:"type:varchar(191);not null;index:ux_tier_price_mappings_ref,unique,priority:2" json:"provider_price_id"`
	Tier            string    `gorm:"type:varchar(32);not null;default:'ember'" json:"tier"`
	IsActive        bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
