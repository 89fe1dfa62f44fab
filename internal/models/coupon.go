package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DiscountType string

const (
	DiscountAmount  DiscountType = "amount"
	DiscountPercent DiscountType = "percent"
)

type CouponStatus string

const (
	StatusActive   CouponStatus = "active"
	StatusExpired  CouponStatus = "expired"
	StatusDisabled CouponStatus = "disabled"
	StatusUsedUp   CouponStatus = "used_up"
)

// Coupon codes are unique per owner, not globally: two household members
// can each track their own "SAVE10".
type Coupon struct {
	ID              uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	Code            string           `gorm:"size:100;not null;uniqueIndex:idx_coupons_owner_code" json:"code"`
	Title           string           `gorm:"size:200;not null" json:"title"`
	Description     *string          `gorm:"size:1000" json:"description,omitempty"`
	DiscountType    DiscountType     `gorm:"size:20;not null" json:"discount_type"`
	DiscountValue   decimal.Decimal  `gorm:"type:decimal(10,2);not null" json:"discount_value"`
	MinimumPurchase *decimal.Decimal `gorm:"type:decimal(10,2)" json:"minimum_purchase,omitempty"`
	MaximumDiscount *decimal.Decimal `gorm:"type:decimal(10,2)" json:"maximum_discount,omitempty"`
	UsageLimit      *int             `json:"usage_limit,omitempty"`
	UsageCount      int              `gorm:"not null;default:0" json:"usage_count"`
	PerUserLimit    *int             `json:"per_user_limit,omitempty"`
	StartDate       *time.Time       `json:"start_date,omitempty"`
	ExpirationDate  *time.Time       `gorm:"index:idx_coupons_status_expiry,priority:2" json:"expiration_date,omitempty"`
	Status          CouponStatus     `gorm:"size:20;not null;default:active;index:idx_coupons_status_expiry,priority:1" json:"status"`
	StoreName       *string          `gorm:"size:200;index:idx_coupons_category_store,priority:2" json:"store_name,omitempty"`
	Category        *string          `gorm:"size:100;index:idx_coupons_category_store,priority:1" json:"category,omitempty"`
	Tags            []string         `gorm:"serializer:json" json:"tags"`
	CreatedBy       uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_coupons_owner_code;index" json:"created_by"`
	Owner           User             `gorm:"foreignKey:CreatedBy" json:"-"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (coupon *Coupon) BeforeCreate(tx *gorm.DB) (err error) {
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	return
}
