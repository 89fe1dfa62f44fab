package coupon

import (
	"github.com/shopspring/decimal"

	"github.com/davrilhan/couponly/internal/models"
)

var oneHundred = decimal.NewFromInt(100)

// ComputeSavings returns the money saved by applying the coupon to a
// purchase. Amount coupons save their face value but never more than
// the purchase itself; percent coupons save value% of the purchase.
// Both are capped by maximum_discount when set. Percent values are
// constrained to (0, 100] at creation, so savings can never exceed the
// purchase; the final clamp keeps the invariant even for rows written
// before that rule existed.
func ComputeSavings(c *models.Coupon, purchase decimal.Decimal) decimal.Decimal {
	var saved decimal.Decimal

	switch c.DiscountType {
	case models.DiscountAmount:
		saved = decimal.Min(c.DiscountValue, purchase)
	case models.DiscountPercent:
		saved = purchase.Mul(c.DiscountValue).Div(oneHundred)
	}

	if c.MaximumDiscount != nil {
		saved = decimal.Min(saved, *c.MaximumDiscount)
	}
	saved = decimal.Min(saved, purchase)

	return saved.Round(2)
}
