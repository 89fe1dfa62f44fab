package coupon

import (
	"time"

	"github.com/davrilhan/couponly/internal/models"
)

// EvaluateStatus derives the status a coupon should carry at the given
// instant. It never touches the database; callers decide whether to
// persist the flip. The returned bool reports whether the stored status
// and the effective one disagree.
//
// Disabled and used_up are sticky: once set they survive any later edit
// to dates or limits. A start date in the future is deliberately not a
// status — it is a per-attempt eligibility gate, so a scheduled coupon
// still lists as active.
func EvaluateStatus(c *models.Coupon, now time.Time) (models.CouponStatus, bool) {
	switch c.Status {
	case models.StatusDisabled, models.StatusUsedUp:
		return c.Status, false
	}

	if c.ExpirationDate != nil && c.ExpirationDate.Before(now) {
		return models.StatusExpired, c.Status != models.StatusExpired
	}

	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return models.StatusUsedUp, true
	}

	return models.StatusActive, c.Status != models.StatusActive
}

// RemainingUses reports how many redemptions are left under the global
// limit, or nil when the coupon is unlimited.
func RemainingUses(c *models.Coupon) *int {
	if c.UsageLimit == nil {
		return nil
	}
	remaining := *c.UsageLimit - c.UsageCount
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
