package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	Token     string    `gorm:"size:512;uniqueIndex;not null"`
	UserID    uuid.UUID `gorm:"type:uuid;not null"`
	User      User
	ExpiresAt time.Time `gorm:"not null"`
	IsRevoked bool      `gorm:"not null;default:false"`
	CreatedAt time.Time
}

func (token *RefreshToken) BeforeCreate(tx *gorm.DB) (err error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	return
}
