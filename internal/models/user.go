package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username     string    `gorm:"uniqueIndex;not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	AvatarURL    string
	// DmBlocked users cannot be messaged privately.
	DmBlocked  bool `gorm:"not null;default:false"`
	LastSeenAt time.Time
	CreatedAt  time.Time
}
