package models

import "time"

// EntitlementGrant records durable access to one content item. The
// (user_id, content_id) pair is unique; re-granting is a no-op.
type EntitlementGrant struct {
	ID              uint       `gorm:"primaryKey" json:"-"`
	UserID          uint       `gorm:"not null;index:ux_entitlement_grants_user_content,unique,priority:1" json:"user_id"`
	ContentID       string     `gorm:"type:varchar(64);not null;index:ux_entitlement_grants_user_content,unique,priority:2" json:"content_id"`
	PurchaseID      uint       `gorm:"not null;default:0;index" json:"-"`
	GrantedAt       time.Time  `gorm:"not null" json:"granted_at"`
	FirstAccessedAt *time.Time `gorm:"type:timestamp;default:null" json:"first_accessed_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"-"`
}
