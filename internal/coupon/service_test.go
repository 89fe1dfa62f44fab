package coupon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/davrilhan/couponly/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// one connection: every pooled conn would otherwise get its own
	// empty in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Coupon{},
		&models.Redemption{},
	))
	return db
}

func newTestUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{
		Email:        name + "@example.com",
		Username:     name,
		FullName:     name,
		PasswordHash: "irrelevant",
		IsActive:     true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }

func timePtr(v time.Time) *time.Time { return &v }

func amountTerms(code string) Terms {
	return Terms{
		Code:          code,
		Title:         "Twenty off",
		DiscountType:  models.DiscountAmount,
		DiscountValue: dec("20"),
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	terms := Terms{
		Code:            "SAVE20",
		Title:           "Twenty off groceries",
		Description:     strPtr("weekly shop"),
		DiscountType:    models.DiscountAmount,
		DiscountValue:   dec("20"),
		MinimumPurchase: decPtr("100"),
		MaximumDiscount: decPtr("20"),
		UsageLimit:      intPtr(5),
		PerUserLimit:    intPtr(2),
		StartDate:       timePtr(start),
		ExpirationDate:  timePtr(start.AddDate(1, 0, 0)),
		StoreName:       strPtr("GrocerMart"),
		Category:        strPtr("groceries"),
		Tags:            []string{"food", "weekly"},
	}

	created, err := svc.Create(ctx, owner.ID, terms)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, created.Status)
	assert.Equal(t, 0, created.UsageCount)

	got, err := svc.Get(ctx, created.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, terms.Code, got.Code)
	assert.Equal(t, terms.Title, got.Title)
	assert.Equal(t, *terms.Description, *got.Description)
	assert.True(t, got.DiscountValue.Equal(dec("20")))
	assert.True(t, got.MinimumPurchase.Equal(dec("100")))
	assert.True(t, got.MaximumDiscount.Equal(dec("20")))
	assert.Equal(t, 5, *got.UsageLimit)
	assert.Equal(t, 2, *got.PerUserLimit)
	assert.Equal(t, []string{"food", "weekly"}, got.Tags)
	assert.Equal(t, "GrocerMart", *got.StoreName)
}

func TestCreateValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()

	tests := []struct {
		name  string
		terms Terms
	}{
		{"missing code", Terms{Title: "x", DiscountType: models.DiscountAmount, DiscountValue: dec("1")}},
		{"missing title", Terms{Code: "C", DiscountType: models.DiscountAmount, DiscountValue: dec("1")}},
		{"zero discount", Terms{Code: "C", Title: "x", DiscountType: models.DiscountAmount, DiscountValue: dec("0")}},
		{"negative discount", Terms{Code: "C", Title: "x", DiscountType: models.DiscountAmount, DiscountValue: dec("-5")}},
		{"percent over 100", Terms{Code: "C", Title: "x", DiscountType: models.DiscountPercent, DiscountValue: dec("150")}},
		{"bad discount type", Terms{Code: "C", Title: "x", DiscountType: "bogof", DiscountValue: dec("1")}},
		{"negative minimum purchase", Terms{Code: "C", Title: "x", DiscountType: models.DiscountAmount, DiscountValue: dec("1"), MinimumPurchase: decPtr("-1")}},
		{"zero maximum discount", Terms{Code: "C", Title: "x", DiscountType: models.DiscountAmount, DiscountValue: dec("1"), MaximumDiscount: decPtr("0")}},
		{"amount max below value", Terms{Code: "C", Title: "x", DiscountType: models.DiscountAmount, DiscountValue: dec("20"), MaximumDiscount: decPtr("10")}},
		{"zero usage limit", Terms{Code: "C", Title: "x", DiscountType: models.DiscountAmount, DiscountValue: dec("1"), UsageLimit: intPtr(0)}},
		{"zero per-user limit", Terms{Code: "C", Title: "x", DiscountType: models.DiscountAmount, DiscountValue: dec("1"), PerUserLimit: intPtr(0)}},
		{"expiry before start", Terms{Code: "C", Title: "x", DiscountType: models.DiscountAmount, DiscountValue: dec("1"),
			StartDate: timePtr(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)), ExpirationDate: timePtr(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, owner.ID, tt.terms)
			var invalid *InvalidInputError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestCreateDuplicateCodePerOwner(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	alice := newTestUser(t, db, "alice")
	bob := newTestUser(t, db, "bob")
	ctx := context.Background()

	_, err := svc.Create(ctx, alice.ID, amountTerms("SAVE20"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, alice.ID, amountTerms("SAVE20"))
	assert.ErrorIs(t, err, ErrDuplicateCode)

	// codes are only unique within one owner's collection
	_, err = svc.Create(ctx, bob.ID, amountTerms("SAVE20"))
	assert.NoError(t, err)
}

func TestRedeemAmountScenario(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()

	terms := amountTerms("SAVE20")
	terms.MinimumPurchase = decPtr("100")
	terms.UsageLimit = intPtr(1)
	created, err := svc.Create(ctx, owner.ID, terms)
	require.NoError(t, err)

	rec, err := svc.Redeem(ctx, created.ID, owner.ID, RedeemInput{PurchaseAmount: decPtr("150")})
	require.NoError(t, err)
	require.NotNil(t, rec.AmountSaved)
	assert.True(t, rec.AmountSaved.Equal(dec("20")))
	assert.True(t, rec.PurchaseAmount.Equal(dec("150")))

	reloaded, err := svc.Get(ctx, created.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUsedUp, reloaded.Status)
	assert.Equal(t, 1, reloaded.UsageCount)

	_, err = svc.Redeem(ctx, created.ID, owner.ID, RedeemInput{PurchaseAmount: decPtr("150")})
	var ineligible *IneligibleError
	require.ErrorAs(t, err, &ineligible)
	assert.Equal(t, ReasonUsedUp, ineligible.Reason)
}

func TestRedeemPercentCappedByMaximum(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()

	terms := Terms{
		Code:            "15OFF",
		Title:           "Fifteen percent",
		DiscountType:    models.DiscountPercent,
		DiscountValue:   dec("15"),
		MaximumDiscount: decPtr("10"),
	}
	created, err := svc.Create(ctx, owner.ID, terms)
	require.NoError(t, err)

	rec, err := svc.Redeem(ctx, created.ID, owner.ID, RedeemInput{PurchaseAmount: decPtr("200")})
	require.NoError(t, err)
	assert.True(t, rec.AmountSaved.Equal(dec("10")), "15%% of 200 is 30, capped to 10, got %s", rec.AmountSaved)
}

func TestRedeemBelowMinimumPurchase(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()

	terms := amountTerms("SAVE20")
	terms.MinimumPurchase = decPtr("100")
	created, err := svc.Create(ctx, owner.ID, terms)
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, created.ID, owner.ID, RedeemInput{PurchaseAmount: decPtr("99.99")})
	var invalid *InvalidInputError
	require.ErrorAs(t, err, &invalid)

	// the failed attempt left no trace
	reloaded, err := svc.Get(ctx, created.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.UsageCount)
	var count int64
	require.NoError(t, db.Model(&models.Redemption{}).Where("coupon_id = ?", created.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRedeemWithoutPurchaseAmount(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()

	// minimum purchase only binds when an amount is supplied
	terms := amountTerms("SAVE20")
	terms.MinimumPurchase = decPtr("100")
	created, err := svc.Create(ctx, owner.ID, terms)
	require.NoError(t, err)

	rec, err := svc.Redeem(ctx, created.ID, owner.ID, RedeemInput{Notes: strPtr("used in store")})
	require.NoError(t, err)
	assert.Nil(t, rec.AmountSaved)
	assert.Nil(t, rec.PurchaseAmount)
	assert.Equal(t, "used in store", *rec.Notes)
}

func TestRedeemNotYetValid(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()

	terms := amountTerms("SOON")
	terms.StartDate = timePtr(time.Now().UTC().Add(24 * time.Hour))
	created, err := svc.Create(ctx, owner.ID, terms)
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, created.ID, owner.ID, RedeemInput{})
	var ineligible *IneligibleError
	require.ErrorAs(t, err, &ineligible)
	assert.Equal(t, ReasonNotYetValid, ineligible.Reason)

	// a scheduled coupon still reads as active
	reloaded, err := svc.Get(ctx, created.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, reloaded.Status)
}

func TestRedeemDisabled(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()

	created, err := svc.Create(ctx, owner.ID, amountTerms("OFF"))
	require.NoError(t, err)
	require.NoError(t, db.Model(created).Update("status", models.StatusDisabled).Error)

	_, err = svc.Redeem(ctx, created.ID, owner.ID, RedeemInput{})
	var ineligible *IneligibleError
	require.ErrorAs(t, err, &ineligible)
	assert.Equal(t, ReasonDisabled, ineligible.Reason)
}

func TestRedeemExpiredPersistsStatus(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()

	terms := amountTerms("OLD")
	created, err := svc.Create(ctx, owner.ID, terms)
	require.NoError(t, err)
	expired := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.Model(created).Update("expiration_date", expired).Error)

	_, err = svc.Redeem(ctx, created.ID, owner.ID, RedeemInput{})
	var ineligible *IneligibleError
	require.ErrorAs(t, err, &ineligible)
	assert.Equal(t, ReasonExpired, ineligible.Reason)

	// the flip discovered during the attempt was committed
	var raw models.Coupon
	require.NoError(t, db.First(&raw, "id = ?", created.ID).Error)
	assert.Equal(t, models.StatusExpired, raw.Status)
}

func TestRedeemPerUserLimit(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	other := newTestUser(t, db, "bob")
	ctx := context.Background()

	terms := amountTerms("EACH1")
	terms.PerUserLimit = intPtr(1)
	created, err := svc.Create(ctx, owner.ID, terms)
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, created.ID, owner.ID, RedeemInput{})
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, created.ID, owner.ID, RedeemInput{})
	var ineligible *IneligibleError
	require.ErrorAs(t, err, &ineligible)
	assert.Equal(t, ReasonPerUserLimit, ineligible.Reason)

	// the cap is per user, not global
	_, err = svc.Redeem(ctx, created.ID, other.ID, RedeemInput{})
	assert.NoError(t, err)
}

func TestConcurrentRedemptionsExhaustExactly(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()

	const limit = 3
	const attempts = 10

	terms := amountTerms("SCARCE")
	terms.UsageLimit = intPtr(limit)
	created, err := svc.Create(ctx, owner.ID, terms)
	require.NoError(t, err)

	users := make([]*models.User, attempts)
	for i := range users {
		users[i] = newTestUser(t, db, "user"+string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Redeem(ctx, created.ID, users[i].ID, RedeemInput{})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var ineligible *IneligibleError
		require.ErrorAs(t, err, &ineligible, "unexpected failure kind: %v", err)
	}
	assert.Equal(t, limit, successes)

	var records int64
	require.NoError(t, db.Model(&models.Redemption{}).Where("coupon_id = ?", created.ID).Count(&records).Error)
	assert.EqualValues(t, limit, records)

	var raw models.Coupon
	require.NoError(t, db.First(&raw, "id = ?", created.ID).Error)
	assert.Equal(t, limit, raw.UsageCount)
	assert.Equal(t, models.StatusUsedUp, raw.Status)
}

func TestGetPersistsLazyStatusFlip(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()

	created, err := svc.Create(ctx, owner.ID, amountTerms("OLD"))
	require.NoError(t, err)
	require.NoError(t, db.Model(created).Update("expiration_date", time.Now().UTC().Add(-time.Minute)).Error)

	got, err := svc.Get(ctx, created.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)

	var raw models.Coupon
	require.NoError(t, db.First(&raw, "id = ?", created.ID).Error)
	assert.Equal(t, models.StatusExpired, raw.Status)
}

func TestGetScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	alice := newTestUser(t, db, "alice")
	bob := newTestUser(t, db, "bob")
	ctx := context.Background()

	created, err := svc.Create(ctx, alice.ID, amountTerms("MINE"))
	require.NoError(t, err)

	_, err = svc.Get(ctx, created.ID, bob.ID)
	assert.ErrorIs(t, err, ErrCouponNotFound)
}

func TestUpdateCoupon(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()

	created, err := svc.Create(ctx, owner.ID, amountTerms("EDITME"))
	require.NoError(t, err)

	disabled := models.StatusDisabled
	update := UpdateTerms{
		Terms: Terms{
			Title:         "Renamed",
			DiscountType:  models.DiscountPercent,
			DiscountValue: dec("10"),
			Tags:          []string{"updated"},
		},
		Status: &disabled,
	}
	updated, err := svc.Update(ctx, created.ID, owner.ID, update)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "EDITME", updated.Code)
	assert.Equal(t, models.StatusDisabled, updated.Status)
	assert.Equal(t, []string{"updated"}, updated.Tags)

	// non-owners cannot edit
	bob := newTestUser(t, db, "bob")
	_, err = svc.Update(ctx, created.ID, bob.ID, update)
	assert.ErrorIs(t, err, ErrCouponNotFound)
}

func TestDeleteCascadesRedemptions(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()

	created, err := svc.Create(ctx, owner.ID, amountTerms("GONE"))
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, created.ID, owner.ID, RedeemInput{})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID, owner.ID))

	var coupons, records int64
	require.NoError(t, db.Model(&models.Coupon{}).Where("id = ?", created.ID).Count(&coupons).Error)
	require.NoError(t, db.Model(&models.Redemption{}).Where("coupon_id = ?", created.ID).Count(&records).Error)
	assert.Zero(t, coupons)
	assert.Zero(t, records)

	assert.ErrorIs(t, svc.Delete(ctx, created.ID, owner.ID), ErrCouponNotFound)
}

func TestSearchFilters(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	other := newTestUser(t, db, "bob")
	ctx := context.Background()

	groceries := amountTerms("GROC5")
	groceries.Title = "Grocery saver"
	groceries.Category = strPtr("groceries")
	groceries.StoreName = strPtr("GrocerMart")
	groceries.Tags = []string{"food"}
	_, err := svc.Create(ctx, owner.ID, groceries)
	require.NoError(t, err)

	electronics := Terms{
		Code:          "TECH15",
		Title:         "Gadget discount",
		DiscountType:  models.DiscountPercent,
		DiscountValue: dec("15"),
		Category:      strPtr("electronics"),
		Tags:          []string{"tech"},
	}
	created, err := svc.Create(ctx, owner.ID, electronics)
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, created.ID, owner.ID, RedeemInput{})
	require.NoError(t, err)

	// someone else's coupons never appear
	_, err = svc.Create(ctx, other.ID, amountTerms("OTHER"))
	require.NoError(t, err)

	all, total, err := svc.Search(ctx, owner.ID, SearchFilter{}, 1, 20)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.EqualValues(t, 2, total)

	byCategory, _, err := svc.Search(ctx, owner.ID, SearchFilter{Category: "electronics"}, 1, 20)
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "TECH15", byCategory[0].Code)

	byText, _, err := svc.Search(ctx, owner.ID, SearchFilter{Search: "gadget"}, 1, 20)
	require.NoError(t, err)
	require.Len(t, byText, 1)
	assert.Equal(t, "TECH15", byText[0].Code)

	byType, _, err := svc.Search(ctx, owner.ID, SearchFilter{DiscountType: models.DiscountAmount}, 1, 20)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "GROC5", byType[0].Code)

	unused, _, err := svc.Search(ctx, owner.ID, SearchFilter{UnusedOnly: true}, 1, 20)
	require.NoError(t, err)
	require.Len(t, unused, 1)
	assert.Equal(t, "GROC5", unused[0].Code)

	byTag, _, err := svc.Search(ctx, owner.ID, SearchFilter{Tags: []string{"tech"}}, 1, 20)
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "TECH15", byTag[0].Code)

	paged, total, err := svc.Search(ctx, owner.ID, SearchFilter{}, 2, 1)
	require.NoError(t, err)
	assert.Len(t, paged, 1)
	assert.EqualValues(t, 2, total)
}

func TestListRedemptionsOwnerOnly(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	redeemer := newTestUser(t, db, "bob")
	ctx := context.Background()

	created, err := svc.Create(ctx, owner.ID, amountTerms("SHARED"))
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, created.ID, redeemer.ID, RedeemInput{PurchaseAmount: decPtr("50")})
	require.NoError(t, err)

	recs, err := svc.ListRedemptions(ctx, created.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, redeemer.ID, recs[0].UserID)

	_, err = svc.ListRedemptions(ctx, created.ID, redeemer.ID)
	assert.ErrorIs(t, err, ErrCouponNotFound)
}

func TestCanUse(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()
	now := time.Now().UTC()

	terms := amountTerms("HINT")
	terms.PerUserLimit = intPtr(1)
	created, err := svc.Create(ctx, owner.ID, terms)
	require.NoError(t, err)

	ok, err := svc.CanUse(ctx, created, owner.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.Redeem(ctx, created.ID, owner.ID, RedeemInput{})
	require.NoError(t, err)

	reloaded, err := svc.Get(ctx, created.ID, owner.ID)
	require.NoError(t, err)
	ok, err = svc.CanUse(ctx, reloaded, owner.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "per-user limit consumed")
}

func TestUpdateDoesNotRevertConcurrentRedemptions(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()

	const limit = 3

	terms := amountTerms("EDITRACE")
	terms.UsageLimit = intPtr(limit)
	created, err := svc.Create(ctx, owner.ID, terms)
	require.NoError(t, err)

	users := make([]*models.User, limit)
	for i := range users {
		users[i] = newTestUser(t, db, "user"+string(rune('a'+i)))
	}

	// Edits interleave with redemptions. The edit path must never write
	// the usage counter or status it loaded, or a redemption committing
	// in between is silently reverted and the limit stops binding.
	var wg sync.WaitGroup
	redeemErrs := make([]error, limit)
	for i := 0; i < limit; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, redeemErrs[i] = svc.Redeem(ctx, created.ID, users[i].ID, RedeemInput{})
		}(i)
		go func(i int) {
			defer wg.Done()
			edit := amountTerms("EDITRACE")
			edit.Title = "Edited title"
			edit.UsageLimit = intPtr(limit)
			_, uerr := svc.Update(ctx, created.ID, owner.ID, UpdateTerms{Terms: edit})
			assert.NoError(t, uerr)
		}(i)
	}
	wg.Wait()

	for _, err := range redeemErrs {
		require.NoError(t, err)
	}

	var raw models.Coupon
	require.NoError(t, db.First(&raw, "id = ?", created.ID).Error)
	var records int64
	require.NoError(t, db.Model(&models.Redemption{}).Where("coupon_id = ?", created.ID).Count(&records).Error)
	assert.EqualValues(t, records, raw.UsageCount, "every committed redemption stays counted")
	assert.EqualValues(t, limit, records)
	assert.Equal(t, models.StatusUsedUp, raw.Status)
	assert.Equal(t, "Edited title", raw.Title)

	// with the counter intact the coupon stays exhausted
	_, err = svc.Redeem(ctx, created.ID, owner.ID, RedeemInput{})
	var ineligible *IneligibleError
	require.ErrorAs(t, err, &ineligible)
}

func TestStatusFlipYieldsToOwnerEdit(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	owner := newTestUser(t, db, "alice")
	ctx := context.Background()

	created, err := svc.Create(ctx, owner.ID, amountTerms("STALE"))
	require.NoError(t, err)

	// the owner disabled the coupon after the flip was derived; the
	// stale expired-flip must not land on top of that
	require.NoError(t, db.Model(created).Update("status", models.StatusDisabled).Error)
	require.NoError(t, svc.persistStatusFlip(ctx, created.ID, models.StatusActive, models.StatusExpired))

	var raw models.Coupon
	require.NoError(t, db.First(&raw, "id = ?", created.ID).Error)
	assert.Equal(t, models.StatusDisabled, raw.Status)

	// a flip derived from the status still on the row does land
	require.NoError(t, db.Model(created).Update("status", models.StatusActive).Error)
	require.NoError(t, svc.persistStatusFlip(ctx, created.ID, models.StatusActive, models.StatusExpired))
	require.NoError(t, db.First(&raw, "id = ?", created.ID).Error)
	assert.Equal(t, models.StatusExpired, raw.Status)
}
