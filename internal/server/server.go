package server

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/davrilhan/couponly/config"
	"github.com/davrilhan/couponly/internal/handlers"
	"github.com/davrilhan/couponly/internal/middleware"
)

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	r := NewRouter(db)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return r.Run(":" + port)
}

// NewRouter wires middleware and routes; split from Start so tests can
// drive the full stack over httptest.
func NewRouter(db *gorm.DB) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.DatabaseMiddleware(db))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
		})
	})

	public := r.Group("/v1/auth")
	public.Use(middleware.RateLimitMiddleware(60, 10))
	{
		public.POST("/register", handlers.Register)
		public.POST("/login", handlers.Login)
		public.POST("/refresh", handlers.RefreshToken)
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware())
	{
		protected.POST("/auth/logout", handlers.Logout)
		protected.GET("/auth/me", handlers.Me)

		coupons := protected.Group("/coupons")
		{
			coupons.POST("", handlers.CreateCoupon)
			coupons.GET("", handlers.ListCoupons)
			coupons.GET("/:id", handlers.GetCoupon)
			coupons.PUT("/:id", handlers.UpdateCoupon)
			coupons.DELETE("/:id", handlers.DeleteCoupon)
			coupons.POST("/:id/redeem", handlers.RedeemCoupon)
			coupons.GET("/:id/redemptions", handlers.ListRedemptions)
		}
	}

	return r
}
