package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davrilhan/couponly/internal/coupon"
	"github.com/davrilhan/couponly/internal/helpers"
	"github.com/davrilhan/couponly/internal/models"
)

type CouponRequest struct {
	Code            string           `json:"code" binding:"required,max=100"`
	Title           string           `json:"title" binding:"required,max=200"`
	Description     *string          `json:"description" binding:"omitempty,max=1000"`
	DiscountType    string           `json:"discount_type" binding:"required,oneof=amount percent"`
	DiscountValue   decimal.Decimal  `json:"discount_value" binding:"required"`
	MinimumPurchase *decimal.Decimal `json:"minimum_purchase"`
	MaximumDiscount *decimal.Decimal `json:"maximum_discount"`
	UsageLimit      *int             `json:"usage_limit" binding:"omitempty,gt=0"`
	PerUserLimit    *int             `json:"per_user_limit" binding:"omitempty,gt=0"`
	StartDate       *time.Time       `json:"start_date"`
	ExpirationDate  *time.Time       `json:"expiration_date"`
	StoreName       *string          `json:"store_name" binding:"omitempty,max=200"`
	Category        *string          `json:"category" binding:"omitempty,max=100"`
	Tags            []string         `json:"tags"`
}

// UpdateCouponRequest replaces a coupon's terms wholesale; the code is
// fixed at creation. Status is how the owner disables (or re-enables) a
// coupon by hand.
type UpdateCouponRequest struct {
	Title           string           `json:"title" binding:"required,max=200"`
	Description     *string          `json:"description" binding:"omitempty,max=1000"`
	DiscountType    string           `json:"discount_type" binding:"required,oneof=amount percent"`
	DiscountValue   decimal.Decimal  `json:"discount_value" binding:"required"`
	MinimumPurchase *decimal.Decimal `json:"minimum_purchase"`
	MaximumDiscount *decimal.Decimal `json:"maximum_discount"`
	UsageLimit      *int             `json:"usage_limit" binding:"omitempty,gt=0"`
	PerUserLimit    *int             `json:"per_user_limit" binding:"omitempty,gt=0"`
	StartDate       *time.Time       `json:"start_date"`
	ExpirationDate  *time.Time       `json:"expiration_date"`
	Status          *string          `json:"status" binding:"omitempty,oneof=active expired disabled used_up"`
	StoreName       *string          `json:"store_name" binding:"omitempty,max=200"`
	Category        *string          `json:"category" binding:"omitempty,max=100"`
	Tags            []string         `json:"tags"`
}

// CouponResponse adds the viewer-dependent fields the UI wants next to
// each coupon.
type CouponResponse struct {
	models.Coupon
	CanUse        bool `json:"can_use"`
	RemainingUses *int `json:"remaining_uses,omitempty"`
}

func newCouponResponse(c *gin.Context, svc *coupon.Service, cp *models.Coupon, viewerID uuid.UUID) (CouponResponse, error) {
	canUse, err := svc.CanUse(c.Request.Context(), cp, viewerID, time.Now().UTC())
	if err != nil {
		return CouponResponse{}, err
	}
	return CouponResponse{
		Coupon:        *cp,
		CanUse:        canUse,
		RemainingUses: coupon.RemainingUses(cp),
	}, nil
}

func respondCouponError(c *gin.Context, err error) {
	var ineligible *coupon.IneligibleError
	var invalid *coupon.InvalidInputError

	switch {
	case errors.Is(err, coupon.ErrCouponNotFound):
		helpers.RespondWithError(c, http.StatusNotFound, "Coupon not found.")
	case errors.Is(err, coupon.ErrDuplicateCode):
		helpers.RespondWithError(c, http.StatusConflict, "Coupon code already exists.")
	case errors.As(err, &ineligible):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   http.StatusText(http.StatusBadRequest),
			"message": ineligible.Error(),
			"reason":  ineligible.Reason,
		})
	case errors.As(err, &invalid):
		helpers.RespondWithError(c, http.StatusBadRequest, invalid.Message)
	case coupon.IsTransient(err):
		c.Header("Retry-After", "1")
		helpers.RespondWithError(c, http.StatusServiceUnavailable, "Temporary conflict, please retry.")
	default:
		helpers.RespondWithError(c, http.StatusInternalServerError, "Internal server error.")
	}
}

func termsFromRequest(req *CouponRequest) coupon.Terms {
	return coupon.Terms{
		Code:            req.Code,
		Title:           req.Title,
		Description:     req.Description,
		DiscountType:    models.DiscountType(req.DiscountType),
		DiscountValue:   req.DiscountValue,
		MinimumPurchase: req.MinimumPurchase,
		MaximumDiscount: req.MaximumDiscount,
		UsageLimit:      req.UsageLimit,
		PerUserLimit:    req.PerUserLimit,
		StartDate:       req.StartDate,
		ExpirationDate:  req.ExpirationDate,
		StoreName:       req.StoreName,
		Category:        req.Category,
		Tags:            req.Tags,
	}
}

func CreateCoupon(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	gormDB, ok := getDB(c)
	if !ok {
		return
	}
	svc := coupon.NewService(gormDB)

	created, err := svc.Create(c.Request.Context(), userID, termsFromRequest(&req))
	if err != nil {
		respondCouponError(c, err)
		return
	}

	resp, err := newCouponResponse(c, svc, created, userID)
	if err != nil {
		respondCouponError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func GetCoupon(c *gin.Context) {
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

	found, err := svc.Get(c.Request.Context(), couponID, userID)
	if err != nil {
		respondCouponError(c, err)
		return
	}

	resp, err := newCouponResponse(c, svc, found, userID)
	if err != nil {
		respondCouponError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func ListCoupons(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	page, err := helpers.StringToInt(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid page number.")
		return
	}
	perPage, err := helpers.StringToInt(c.DefaultQuery("per_page", "20"))
	if err != nil || perPage < 1 || perPage > 100 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid page size.")
		return
	}

	expiresBefore, err := helpers.ParseTimeQuery(c.Query("expires_before"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid expires_before timestamp.")
		return
	}
	expiresAfter, err := helpers.ParseTimeQuery(c.Query("expires_after"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid expires_after timestamp.")
		return
	}
	minDiscount, err := helpers.ParseDecimalQuery(c.Query("min_discount"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid min_discount value.")
		return
	}
	maxDiscount, err := helpers.ParseDecimalQuery(c.Query("max_discount"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid max_discount value.")
		return
	}

	filter := coupon.SearchFilter{
		Search:        c.Query("search"),
		Status:        models.CouponStatus(c.Query("status")),
		Category:      c.Query("category"),
		StoreName:     c.Query("store_name"),
		DiscountType:  models.DiscountType(c.Query("discount_type")),
		ExpiresBefore: expiresBefore,
		ExpiresAfter:  expiresAfter,
		MinDiscount:   minDiscount,
		MaxDiscount:   maxDiscount,
		UnusedOnly:    c.Query("unused_only") == "true",
		Tags:          c.QueryArray("tags"),
	}

	gormDB, ok := getDB(c)
	if !ok {
		return
	}
	svc := coupon.NewService(gormDB)

	coupons, total, err := svc.Search(c.Request.Context(), userID, filter, page, perPage)
	if err != nil {
		respondCouponError(c, err)
		return
	}

	responses := make([]CouponResponse, 0, len(coupons))
	for i := range coupons {
		resp, err := newCouponResponse(c, svc, &coupons[i], userID)
		if err != nil {
			respondCouponError(c, err)
			return
		}
		responses = append(responses, resp)
	}

	c.JSON(http.StatusOK, gin.H{
		"coupons":     responses,
		"total":       total,
		"page":        page,
		"per_page":    perPage,
		"total_pages": (total + int64(perPage) - 1) / int64(perPage),
	})
}

func UpdateCoupon(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	couponID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid coupon ID.")
		return
	}

	var req UpdateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	gormDB, ok := getDB(c)
	if !ok {
		return
	}
	svc := coupon.NewService(gormDB)

	update := coupon.UpdateTerms{
		Terms: coupon.Terms{
			Title:           req.Title,
			Description:     req.Description,
			DiscountType:    models.DiscountType(req.DiscountType),
			DiscountValue:   req.DiscountValue,
			MinimumPurchase: req.MinimumPurchase,
			MaximumDiscount: req.MaximumDiscount,
			UsageLimit:      req.UsageLimit,
			PerUserLimit:    req.PerUserLimit,
			StartDate:       req.StartDate,
			ExpirationDate:  req.ExpirationDate,
			StoreName:       req.StoreName,
			Category:        req.Category,
			Tags:            req.Tags,
		},
	}
	if req.Status != nil {
		status := models.CouponStatus(*req.Status)
		update.Status = &status
	}

	updated, err := svc.Update(c.Request.Context(), couponID, userID, update)
	if err != nil {
		respondCouponError(c, err)
		return
	}

	resp, err := newCouponResponse(c, svc, updated, userID)
	if err != nil {
		respondCouponError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func DeleteCoupon(c *gin.Context) {
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

	if err := svc.Delete(c.Request.Context(), couponID, userID); err != nil {
		respondCouponError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Coupon deleted successfully."})
}
