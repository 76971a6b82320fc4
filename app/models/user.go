package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// User is the payer record. Billing only touches the tier and the Stripe
// linkage columns; everything else is owned by the account layer.
type User struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	Name                 string         `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	Email                string         `gorm:"type:varchar(320);index" json:"email" validate:"omitempty,email,max=320"`
	Tier                 string         `gorm:"type:varchar(32);not null;default:'ember'" json:"tier" validate:"oneof=ember flamewalker harmonizer architect"`
	StripeCustomerID     string         `gorm:"type:varchar(255);not null;default:'';index" json:"-"`
	StripeSubscriptionID string         `gorm:"type:varchar(255);not null;default:''" json:"-"`
	CreatedAt            time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// HasSubscription reports whether the payer is linked to a provider subscription.
func (u *User) HasSubscription() bool {
	return u != nil && u.StripeSubscriptionID != ""
}
