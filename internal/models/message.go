package models

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomID uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_room_created,priority:1;uniqueIndex:idx_messages_client,priority:1"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_messages_client,priority:2"`
	// ClientID is the sender's temporary id; a resent request with the same
	// value returns the stored row instead of inserting a copy.
	ClientID       *string `gorm:"size:64;uniqueIndex:idx_messages_client,priority:3"`
	Content        string  `gorm:"not null;default:''"`
	AttachmentURL  string
	AttachmentName string
	// AttachmentKind is "image", "file" or empty.
	AttachmentKind string
	IsPinned       bool      `gorm:"not null;default:false"`
	IsDeleted      bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"index:idx_messages_room_created,priority:2"`
	UpdatedAt      time.Time

	User User `gorm:"foreignKey:UserID"`
}
