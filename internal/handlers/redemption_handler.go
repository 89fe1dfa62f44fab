package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davrilhan/couponly/internal/coupon"
	"github.com/davrilhan/couponly/internal/helpers"
)

type RedeemCouponRequest struct {
	PurchaseAmount *decimal.Decimal `json:"purchase_amount"`
	Notes          *string          `json:"notes" binding:"omitempty,max=500"`
}

// RedeemCoupon records a use of the coupon by the caller. Any
// authenticated household member may redeem any coupon; ownership only
// gates editing.
func RedeemCoupon(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	couponID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid coupon ID.")
		return
	}

	var req RedeemCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
	if req.PurchaseAmount != nil && !req.PurchaseAmount.IsPositive() {
		helpers.RespondWithError(c, http.StatusBadRequest, "Purchase amount must be positive.")
		return
	}

	gormDB, ok := getDB(c)
	if !ok {
		return
	}
	svc := coupon.NewService(gormDB)

	rec, err := svc.Redeem(c.Request.Context(), couponID, userID, coupon.RedeemInput{
		PurchaseAmount: req.PurchaseAmount,
		Notes:          req.Notes,
	})
	if err != nil {
		respondCouponError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// ListRedemptions returns a coupon's redemption history to its owner.
func ListRedemptions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	couponID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid coupon ID.")
		return
	}

	gormDB, ok := getDB(c)
	if !ok {
		return
	}
	svc := coupon.NewService(gormDB)

	recs, err := svc.ListRedemptions(c.Request.Context(), couponID, userID)
	if err != nil {
		respondCouponError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"redemptions": recs,
		"total":       len(recs),
	})
}
