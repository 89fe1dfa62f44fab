package handlers

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/davrilhan/couponly/internal/helpers"
	"github.com/davrilhan/couponly/internal/models"
)

const (
	accessTokenTTL  = 30 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=100"`
	FullName string `json:"full_name" binding:"required,max=200"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func getDB(c *gin.Context) (*gorm.DB, bool) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return nil, false
	}
	return db.(*gorm.DB), true
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return uuid.Nil, false
	}
	id, ok := userID.(uuid.UUID)
	if !ok {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Invalid user ID format.")
		return uuid.Nil, false
	}
	return id, true
}

func Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	gormDB, ok := getDB(c)
	if !ok {
		return
	}

	username := strings.ToLower(req.Username)

	var existing models.User
	if err := gormDB.Where("email = ? OR username = ?", req.Email, username).First(&existing).Error; err == nil {
		if existing.Email == req.Email {
			helpers.RespondWithError(c, http.StatusConflict, "Email already registered.")
		} else {
			helpers.RespondWithError(c, http.StatusConflict, "Username already taken.")
		}
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to hash the password.")
		return
	}

	user := models.User{
		Email:        req.Email,
		Username:     username,
		FullName:     req.FullName,
		PasswordHash: string(hashedPassword),
		IsActive:     true,
	}

	if err := gormDB.Create(&user).Error; err != nil {
		// the unique indexes backstop the pre-check under concurrency
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			helpers.RespondWithError(c, http.StatusConflict, "Email or username already registered.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create user.")
		return
	}

	c.JSON(http.StatusCreated, user)
}

func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	gormDB, ok := getDB(c)
	if !ok {
		return
	}

	var user models.User
	if err := gormDB.Where("email = ? AND is_active = ?", req.Email, true).First(&user).Error; err != nil {
		helpers.RespondWithError(c, http.StatusUnauthorized, "Incorrect email or password.")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		helpers.RespondWithError(c, http.StatusUnauthorized, "Incorrect email or password.")
		return
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		helpers.RespondWithError(c, http.StatusInternalServerError, "JWT_SECRET not configured.")
		return
	}

	accessToken, err := signAccessToken(&user, secret)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate token.")
		return
	}

	refreshToken, err := signRefreshToken(&user, secret)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate token.")
		return
	}

	now := time.Now().UTC()
	stored := models.RefreshToken{
		Token:     refreshToken,
		UserID:    user.ID,
		ExpiresAt: now.Add(refreshTokenTTL),
	}
	if err := gormDB.Create(&stored).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to store refresh token.")
		return
	}

	gormDB.Model(&user).Update("last_login", now)

	c.JSON(http.StatusOK, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "bearer",
		"expires_in":    int(accessTokenTTL.Seconds()),
		"user": gin.H{
			"id":        user.ID,
			"email":     user.Email,
			"username":  user.Username,
			"full_name": user.FullName,
		},
	})
}

func RefreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Refresh token is required.")
		return
	}

	gormDB, ok := getDB(c)
	if !ok {
		return
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		helpers.RespondWithError(c, http.StatusInternalServerError, "JWT_SECRET not configured.")
		return
	}

	claims, err := parseToken(req.RefreshToken, secret)
	if err != nil || claims["type"] != "refresh" {
		helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid refresh token.")
		return
	}

	var stored models.RefreshToken
	err = gormDB.Where("token = ? AND is_revoked = ? AND expires_at > ?",
		req.RefreshToken, false, time.Now().UTC()).First(&stored).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusUnauthorized, "Refresh token expired or revoked.")
		return
	}

	var user models.User
	if err := gormDB.First(&user, "id = ? AND is_active = ?", stored.UserID, true).Error; err != nil {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not found or inactive.")
		return
	}

	accessToken, err := signAccessToken(&user, secret)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate token.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": accessToken,
		"token_type":   "bearer",
		"expires_in":   int(accessTokenTTL.Seconds()),
	})
}

func Logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Refresh token is required.")
		return
	}

	gormDB, ok := getDB(c)
	if !ok {
		return
	}

	gormDB.Model(&models.RefreshToken{}).
		Where("token = ?", req.RefreshToken).
		Update("is_revoked", true)

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out."})
}

func Me(c *gin.Context) {
	user, exists := c.Get("current_user")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}
	c.JSON(http.StatusOK, user)
}

func signAccessToken(user *models.User, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      user.ID.String(),
		"username": user.Username,
		"email":    user.Email,
		"type":     "access",
		"exp":      time.Now().Add(accessTokenTTL).Unix(),
	})
	return token.SignedString([]byte(secret))
}

func signRefreshToken(user *models.User, secret string) (string, error) {
	// jti keeps two logins in the same second from minting the same token
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"type": "refresh",
		"jti":  uuid.New().String(),
		"exp":  time.Now().Add(refreshTokenTTL).Unix(),
	})
	return token.SignedString([]byte(secret))
}

func parseToken(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
