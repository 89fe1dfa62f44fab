package coupon

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrCouponNotFound = errors.New("coupon not found")
	ErrDuplicateCode  = errors.New("coupon code already exists")
)

// IneligibleReason tells the caller which gate a redemption failed, so
// the UI can say more than "no".
type IneligibleReason string

const (
	ReasonExpired      IneligibleReason = "expired"
	ReasonUsedUp       IneligibleReason = "used_up"
	ReasonDisabled     IneligibleReason = "disabled"
	ReasonNotYetValid  IneligibleReason = "not_yet_valid"
	ReasonUsageLimit   IneligibleReason = "usage_limit_reached"
	ReasonPerUserLimit IneligibleReason = "per_user_limit_reached"
)

// IneligibleError means the coupon exists but a lifecycle, date or limit
// check refused this redemption.
type IneligibleError struct {
	Reason IneligibleReason
}

func (e *IneligibleError) Error() string {
	switch e.Reason {
	case ReasonExpired:
		return "coupon has expired"
	case ReasonUsedUp, ReasonUsageLimit:
		return "coupon usage limit reached"
	case ReasonDisabled:
		return "coupon is disabled"
	case ReasonNotYetValid:
		return "coupon is not yet valid"
	case ReasonPerUserLimit:
		return "per-user usage limit reached for this coupon"
	}
	return "coupon is not eligible for redemption"
}

// InvalidInputError covers malformed or out-of-policy request data:
// purchase below the minimum, percent discounts above 100, and so on.
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string {
	return e.Message
}

// Postgres SQLSTATEs that mean "nothing happened, try again":
// serialization failure, deadlock victim, lock_timeout.
var transientStates = map[string]bool{
	"40001": true,
	"40P01": true,
	"55P03": true,
}

// IsTransient reports whether err is a lock/serialization failure that
// rolled back cleanly and is safe to retry.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientStates[pgErr.Code]
	}
	return false
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
