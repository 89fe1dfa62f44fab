package coupon

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock victim", &pgconn.PgError{Code: "40P01"}, true},
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, true},
		{"wrapped serialization failure", fmt.Errorf("redeem: %w", &pgconn.PgError{Code: "40001"}), true},
		{"unique violation is not transient", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("connection refused"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("create: %w", gorm.ErrDuplicatedKey)))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "40001"}))
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
}

func TestIneligibleErrorMessages(t *testing.T) {
	for reason, want := range map[IneligibleReason]string{
		ReasonExpired:      "coupon has expired",
		ReasonUsedUp:       "coupon usage limit reached",
		ReasonUsageLimit:   "coupon usage limit reached",
		ReasonDisabled:     "coupon is disabled",
		ReasonNotYetValid:  "coupon is not yet valid",
		ReasonPerUserLimit: "per-user usage limit reached for this coupon",
	} {
		err := &IneligibleError{Reason: reason}
		assert.Equal(t, want, err.Error())
	}
}
