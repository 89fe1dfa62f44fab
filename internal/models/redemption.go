package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Redemption is append-only: rows are never updated or deleted except by
// the cascade when the coupon itself goes away.
type Redemption struct {
	ID             uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	CouponID       uuid.UUID        `gorm:"type:uuid;not null;index:idx_redemptions_user_coupon,priority:2" json:"coupon_id"`
	Coupon         Coupon           `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID         uuid.UUID        `gorm:"type:uuid;not null;index:idx_redemptions_user_coupon,priority:1" json:"user_id"`
	User           User             `json:"-"`
	UsedAt         time.Time        `gorm:"not null;index" json:"used_at"`
	PurchaseAmount *decimal.Decimal `gorm:"type:decimal(10,2)" json:"purchase_amount,omitempty"`
	AmountSaved    *decimal.Decimal `gorm:"type:decimal(10,2)" json:"amount_saved,omitempty"`
	Notes          *string          `gorm:"size:500" json:"notes,omitempty"`
}

func (redemption *Redemption) BeforeCreate(tx *gorm.DB) (err error) {
	if redemption.ID == uuid.Nil {
		redemption.ID = uuid.New()
	}
	if redemption.UsedAt.IsZero() {
		redemption.UsedAt = time.Now().UTC()
	}
	return
}
