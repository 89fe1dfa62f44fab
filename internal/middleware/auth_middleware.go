package middleware

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/davrilhan/couponly/internal/helpers"
	"github.com/davrilhan/couponly/internal/models"
)

// JWTAuthMiddleware resolves the caller from a bearer access token and
// stores the user on the request context. Must run after
// DatabaseMiddleware: revoked or deactivated accounts are rejected even
// while their tokens are still within their lifetime.
func JWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			helpers.AbortWithError(c, http.StatusUnauthorized, "Missing or malformed authorization header.")
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			helpers.AbortWithError(c, http.StatusInternalServerError, "JWT_SECRET not configured.")
			return
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			helpers.AbortWithError(c, http.StatusUnauthorized, "Invalid authentication token.")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || claims["type"] != "access" {
			helpers.AbortWithError(c, http.StatusUnauthorized, "Invalid authentication token.")
			return
		}

		sub, _ := claims["sub"].(string)
		userID, err := uuid.Parse(sub)
		if err != nil {
			helpers.AbortWithError(c, http.StatusUnauthorized, "Invalid token payload.")
			return
		}

		db, exists := c.Get("db")
		if !exists {
			helpers.AbortWithError(c, http.StatusInternalServerError, "Database connection not found.")
			return
		}
		gormDB := db.(*gorm.DB)

		var user models.User
		if err := gormDB.First(&user, "id = ? AND is_active = ?", userID, true).Error; err != nil {
			helpers.AbortWithError(c, http.StatusUnauthorized, "User not found or inactive.")
			return
		}

		c.Set("user_id", user.ID)
		c.Set("current_user", &user)
		c.Next()
	}
}
