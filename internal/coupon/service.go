package coupon

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/davrilhan/couponly/internal/models"
)

// Service owns coupon CRUD and the redemption transaction.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Terms is the validated, owner-supplied part of a coupon.
type Terms struct {
	Code            string
	Title           string
	Description     *string
	DiscountType    models.DiscountType
	DiscountValue   decimal.Decimal
	MinimumPurchase *decimal.Decimal
	MaximumDiscount *decimal.Decimal
	UsageLimit      *int
	PerUserLimit    *int
	StartDate       *time.Time
	ExpirationDate  *time.Time
	StoreName       *string
	Category        *string
	Tags            []string
}

func validateTerms(t *Terms) error {
	if strings.TrimSpace(t.Code) == "" {
		return &InvalidInputError{Message: "coupon code is required"}
	}
	if strings.TrimSpace(t.Title) == "" {
		return &InvalidInputError{Message: "coupon title is required"}
	}
	switch t.DiscountType {
	case models.DiscountAmount, models.DiscountPercent:
	default:
		return &InvalidInputError{Message: "discount type must be amount or percent"}
	}
	if !t.DiscountValue.IsPositive() {
		return &InvalidInputError{Message: "discount value must be positive"}
	}
	if t.DiscountType == models.DiscountPercent && t.DiscountValue.GreaterThan(oneHundred) {
		return &InvalidInputError{Message: "percentage discount cannot exceed 100%"}
	}
	if t.MinimumPurchase != nil && t.MinimumPurchase.IsNegative() {
		return &InvalidInputError{Message: "minimum purchase cannot be negative"}
	}
	if t.MaximumDiscount != nil {
		if !t.MaximumDiscount.IsPositive() {
			return &InvalidInputError{Message: "maximum discount must be positive"}
		}
		if t.DiscountType == models.DiscountAmount && t.MaximumDiscount.LessThan(t.DiscountValue) {
			return &InvalidInputError{Message: "maximum discount cannot be less than discount value for amount discounts"}
		}
	}
	if t.UsageLimit != nil && *t.UsageLimit <= 0 {
		return &InvalidInputError{Message: "usage limit must be positive"}
	}
	if t.PerUserLimit != nil && *t.PerUserLimit <= 0 {
		return &InvalidInputError{Message: "per-user limit must be positive"}
	}
	if t.StartDate != nil && t.ExpirationDate != nil && !t.ExpirationDate.After(*t.StartDate) {
		return &InvalidInputError{Message: "expiration date must be after start date"}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, t Terms) (*models.Coupon, error) {
	if err := validateTerms(&t); err != nil {
		return nil, err
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.Coupon{}).
		Where("created_by = ? AND code = ?", ownerID, t.Code).
		Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrDuplicateCode
	}

	if t.Tags == nil {
		t.Tags = []string{}
	}

	c := &models.Coupon{
		Code:            t.Code,
		Title:           t.Title,
		Description:     t.Description,
		DiscountType:    t.DiscountType,
		DiscountValue:   t.DiscountValue,
		MinimumPurchase: t.MinimumPurchase,
		MaximumDiscount: t.MaximumDiscount,
		UsageLimit:      t.UsageLimit,
		PerUserLimit:    t.PerUserLimit,
		StartDate:       t.StartDate,
		ExpirationDate:  t.ExpirationDate,
		Status:          models.StatusActive,
		StoreName:       t.StoreName,
		Category:        t.Category,
		Tags:            t.Tags,
		CreatedBy:       ownerID,
	}

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error; err != nil {
		// the unique index backstops the pre-check under concurrency
		if isUniqueViolation(err) {
			return nil, ErrDuplicateCode
		}
		return nil, err
	}
	return c, nil
}

// Get returns one of the owner's coupons, persisting any status flip the
// read discovers.
func (s *Service) Get(ctx context.Context, id, ownerID uuid.UUID) (*models.Coupon, error) {
	var c models.Coupon
	err := s.db.WithContext(ctx).First(&c, "id = ? AND created_by = ?", id, ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}

	if effective, mutated := EvaluateStatus(&c, time.Now().UTC()); mutated {
		if err := s.db.WithContext(ctx).Model(&c).Update("status", effective).Error; err != nil {
			return nil, err
		}
		c.Status = effective
	}
	return &c, nil
}

// UpdateTerms replaces a coupon's editable terms. Code is fixed for the
// coupon's lifetime; Status may be overridden by the owner (this is how
// a coupon gets disabled).
type UpdateTerms struct {
	Terms
	Status *models.CouponStatus
}

func (s *Service) Update(ctx context.Context, id, ownerID uuid.UUID, in UpdateTerms) (*models.Coupon, error) {
	var c models.Coupon
	err := s.db.WithContext(ctx).First(&c, "id = ? AND created_by = ?", id, ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}

	in.Code = c.Code
	if err := validateTerms(&in.Terms); err != nil {
		return nil, err
	}
	if in.Status != nil {
		switch *in.Status {
		case models.StatusActive, models.StatusExpired, models.StatusDisabled, models.StatusUsedUp:
		default:
			return nil, &InvalidInputError{Message: "unknown coupon status"}
		}
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}

	c.Title = in.Title
	c.Description = in.Description
	c.DiscountType = in.DiscountType
	c.DiscountValue = in.DiscountValue
	c.MinimumPurchase = in.MinimumPurchase
	c.MaximumDiscount = in.MaximumDiscount
	c.UsageLimit = in.UsageLimit
	c.PerUserLimit = in.PerUserLimit
	c.StartDate = in.StartDate
	c.ExpirationDate = in.ExpirationDate
	c.StoreName = in.StoreName
	c.Category = in.Category
	c.Tags = in.Tags
	if in.Status != nil {
		c.Status = *in.Status
	}

	// Write only the editable term columns. usage_count (and status,
	// unless the owner set it) belong to the redemption transaction; a
	// whole-row Save here would revert a redemption committed between
	// the read above and this write.
	cols := []string{
		"title", "description", "discount_type", "discount_value",
		"minimum_purchase", "maximum_discount", "usage_limit", "per_user_limit",
		"start_date", "expiration_date", "store_name", "category", "tags",
	}
	if in.Status != nil {
		cols = append(cols, "status")
	}
	if err := s.db.WithContext(ctx).Model(&c).Select(cols).Updates(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// Delete removes a coupon and its redemption history in one transaction.
func (s *Service) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Coupon
		err := tx.First(&c, "id = ? AND created_by = ?", id, ownerID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCouponNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Where("coupon_id = ?", c.ID).Delete(&models.Redemption{}).Error; err != nil {
			return err
		}
		return tx.Delete(&c).Error
	})
}

type SearchFilter struct {
	Search        string
	Status        models.CouponStatus
	Category      string
	StoreName     string
	DiscountType  models.DiscountType
	ExpiresBefore *time.Time
	ExpiresAfter  *time.Time
	MinDiscount   *decimal.Decimal
	MaxDiscount   *decimal.Decimal
	UnusedOnly    bool
	Tags          []string
}

// Search lists the owner's coupons. Status flips discovered here are
// applied to the returned rows for display accuracy but not persisted;
// the next read or redemption of the individual coupon does that.
func (s *Service) Search(ctx context.Context, ownerID uuid.UUID, f SearchFilter, page, perPage int) ([]models.Coupon, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Coupon{}).Where("created_by = ?", ownerID)

	if f.Search != "" {
		pat := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where(
			"LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(code) LIKE ? OR LOWER(store_name) LIKE ?",
			pat, pat, pat, pat,
		)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		q = q.Where("LOWER(category) LIKE ?", "%"+strings.ToLower(f.Category)+"%")
	}
	if f.StoreName != "" {
		q = q.Where("LOWER(store_name) LIKE ?", "%"+strings.ToLower(f.StoreName)+"%")
	}
	if f.DiscountType != "" {
		q = q.Where("discount_type = ?", f.DiscountType)
	}
	if f.ExpiresBefore != nil {
		q = q.Where("expiration_date <= ?", f.ExpiresBefore)
	}
	if f.ExpiresAfter != nil {
		q = q.Where("expiration_date >= ?", f.ExpiresAfter)
	}
	if f.MinDiscount != nil {
		q = q.Where("discount_value >= ?", f.MinDiscount)
	}
	if f.MaxDiscount != nil {
		q = q.Where("discount_value <= ?", f.MaxDiscount)
	}
	if f.UnusedOnly {
		q = q.Where("usage_count = 0")
	}
	for _, tag := range f.Tags {
		// tags are stored as a JSON array; match the quoted element
		q = q.Where("tags LIKE ?", "%\""+tag+"\"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var coupons []models.Coupon
	offset := (page - 1) * perPage
	if err := q.Order("updated_at DESC").Offset(offset).Limit(perPage).Find(&coupons).Error; err != nil {
		return nil, 0, err
	}

	now := time.Now().UTC()
	for i := range coupons {
		if effective, mutated := EvaluateStatus(&coupons[i], now); mutated {
			coupons[i].Status = effective
		}
	}
	return coupons, total, nil
}

type RedeemInput struct {
	PurchaseAmount *decimal.Decimal
	Notes          *string
}

const (
	redeemMaxRetries = 3
	redeemBackoff    = 50 * time.Millisecond
)

// Redeem applies a coupon for a user: all limit checks, the savings
// calculation and the usage-counter increment happen in one transaction
// holding a row lock on the coupon, so concurrent attempts against the
// last remaining use produce exactly one record. Lock and serialization
// failures roll back cleanly and are retried with backoff before being
// surfaced to the caller.
func (s *Service) Redeem(ctx context.Context, couponID, userID uuid.UUID, in RedeemInput) (*models.Redemption, error) {
	backoff := redeemBackoff
	for attempt := 0; ; attempt++ {
		rec, err := s.redeemOnce(ctx, couponID, userID, in)
		if err == nil || !IsTransient(err) || attempt == redeemMaxRetries {
			return rec, err
		}

		jitter := time.Duration(rand.Int63n(int64(backoff / 4)))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
}

func (s *Service) redeemOnce(ctx context.Context, couponID, userID uuid.UUID, in RedeemInput) (*models.Redemption, error) {
	now := time.Now().UTC()
	var rec *models.Redemption

	// A status flip discovered during a failed attempt must survive the
	// rollback, so it is recorded here and written after the transaction.
	var flip *models.CouponStatus
	var flipFrom models.CouponStatus

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Coupon
		if err := lockForUpdate(tx).First(&c, "id = ?", couponID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCouponNotFound
			}
			return err
		}

		effective, mutated := EvaluateStatus(&c, now)
		if mutated {
			st := effective
			flip = &st
			flipFrom = c.Status
			c.Status = effective
		}
		if effective != models.StatusActive {
			return &IneligibleError{Reason: reasonForStatus(effective)}
		}

		if c.StartDate != nil && c.StartDate.After(now) {
			return &IneligibleError{Reason: ReasonNotYetValid}
		}

		// Re-checked under the row lock: no concurrent redemption can
		// commit between this read and the increment below.
		if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
			st := models.StatusUsedUp
			flip = &st
			flipFrom = c.Status
			return &IneligibleError{Reason: ReasonUsageLimit}
		}

		if c.PerUserLimit != nil {
			var used int64
			if err := tx.Model(&models.Redemption{}).
				Where("coupon_id = ? AND user_id = ?", c.ID, userID).
				Count(&used).Error; err != nil {
				return err
			}
			if used >= int64(*c.PerUserLimit) {
				return &IneligibleError{Reason: ReasonPerUserLimit}
			}
		}

		var saved *decimal.Decimal
		if in.PurchaseAmount != nil {
			if c.MinimumPurchase != nil && in.PurchaseAmount.LessThan(*c.MinimumPurchase) {
				return &InvalidInputError{
					Message: fmt.Sprintf("minimum purchase amount is %s", c.MinimumPurchase.StringFixed(2)),
				}
			}
			v := ComputeSavings(&c, *in.PurchaseAmount)
			saved = &v
		}

		rec = &models.Redemption{
			CouponID:       c.ID,
			UserID:         userID,
			UsedAt:         now,
			PurchaseAmount: in.PurchaseAmount,
			AmountSaved:    saved,
			Notes:          in.Notes,
		}
		if err := tx.Omit(clause.Associations).Create(rec).Error; err != nil {
			return err
		}

		c.UsageCount++
		if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
			c.Status = models.StatusUsedUp
		}
		return tx.Model(&c).Updates(map[string]interface{}{
			"usage_count": c.UsageCount,
			"status":      c.Status,
		}).Error
	})
	if err != nil {
		var ineligible *IneligibleError
		if flip != nil && errors.As(err, &ineligible) {
			if uerr := s.persistStatusFlip(ctx, couponID, flipFrom, *flip); uerr != nil {
				return nil, uerr
			}
		}
		return nil, err
	}
	return rec, nil
}

// persistStatusFlip records a lazily discovered status transition, but
// only while the row still holds the status the transition was derived
// from. An owner edit landing in between wins.
func (s *Service) persistStatusFlip(ctx context.Context, id uuid.UUID, from, to models.CouponStatus) error {
	return s.db.WithContext(ctx).Model(&models.Coupon{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to).Error
}

// sqlite has no FOR UPDATE syntax; its single-writer model already
// serializes the check-then-increment sequence.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func reasonForStatus(status models.CouponStatus) IneligibleReason {
	switch status {
	case models.StatusExpired:
		return ReasonExpired
	case models.StatusDisabled:
		return ReasonDisabled
	default:
		return ReasonUsedUp
	}
}

// ListRedemptions returns a coupon's redemption history, owner only.
func (s *Service) ListRedemptions(ctx context.Context, couponID, ownerID uuid.UUID) ([]models.Redemption, error) {
	var owned int64
	if err := s.db.WithContext(ctx).Model(&models.Coupon{}).
		Where("id = ? AND created_by = ?", couponID, ownerID).
		Count(&owned).Error; err != nil {
		return nil, err
	}
	if owned == 0 {
		return nil, ErrCouponNotFound
	}

	var recs []models.Redemption
	err := s.db.WithContext(ctx).
		Where("coupon_id = ?", couponID).
		Order("used_at DESC").
		Find(&recs).Error
	return recs, err
}

func (s *Service) CountUserRedemptions(ctx context.Context, couponID, userID uuid.UUID) (int64, error) {
	var used int64
	err := s.db.WithContext(ctx).Model(&models.Redemption{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&used).Error
	return used, err
}

// CanUse mirrors the redemption gates without taking locks; it is a
// display hint, not a reservation.
func (s *Service) CanUse(ctx context.Context, c *models.Coupon, userID uuid.UUID, now time.Time) (bool, error) {
	if effective, _ := EvaluateStatus(c, now); effective != models.StatusActive {
		return false, nil
	}
	if c.StartDate != nil && c.StartDate.After(now) {
		return false, nil
	}
	if remaining := RemainingUses(c); remaining != nil && *remaining == 0 {
		return false, nil
	}
	if c.PerUserLimit != nil {
		used, err := s.CountUserRedemptions(ctx, c.ID, userID)
		if err != nil {
			return false, err
		}
		if used >= int64(*c.PerUserLimit) {
			return false, nil
		}
	}
	return true, nil
}
