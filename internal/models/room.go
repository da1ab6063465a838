package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	RoomTypePrivate = "private"
	RoomTypeGroup   = "group"
)

const (
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

type Room struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name string
	Type string `gorm:"not null;check:type IN ('private','group')"`
	// PairKey is set for private rooms only; the unique index makes the room
	// for a pair of users exist at most once.
	PairKey   *string `gorm:"uniqueIndex"`
	CreatedBy uuid.UUID
	CreatedAt time.Time

	Members  []Membership `gorm:"foreignKey:RoomID"`
	Messages []Message    `gorm:"foreignKey:RoomID"`
}

// Membership is a user's participation in a room and their read watermark.
type Membership struct {
	RoomID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	Role       string    `gorm:"not null;default:'member';check:role IN ('member','moderator','admin')"`
	LastReadAt time.Time
	JoinedAt   time.Time

	User User `gorm:"foreignKey:UserID"`
}

// PairKey is the order-independent key of a private room between a and b.
func PairKey(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return ids[0] + ":" + ids[1]
}

func (r *Room) Member(userID uuid.UUID) *Membership {
	for i := range r.Members {
		if r.Members[i].UserID == userID {
			return &r.Members[i]
		}
	}
	return nil
}
