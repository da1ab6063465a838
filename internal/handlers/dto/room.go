package dto

import (
	"time"

	"github.com/google/uuid"
)

type MembershipResponse struct {
	RoomID     uuid.UUID `json:"room_id"`
	UserID     uuid.UUID `json:"user_id"`
	Username   string    `json:"username,omitempty"`
	Role       string    `json:"role,omitempty"`
	LastReadAt time.Time `json:"last_read_at"`
}

type RoomResponse struct {
	ID          uuid.UUID            `json:"id"`
	Type        string               `json:"type"`
	Name        string               `json:"name,omitempty"`
	Members     []MembershipResponse `json:"members"`
	LastMessage *MessageResponse     `json:"last_message,omitempty"`
	UnreadCount int64                `json:"unread_count"`
	CreatedAt   time.Time            `json:"created_at"`
}

type CreateGroupRequest struct {
	Name      string      `json:"name" binding:"required,min=1,max=100"`
	MemberIDs []uuid.UUID `json:"member_ids"`
}

type PrivateRoomRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// SetMemberRequest adds a user to a group room or changes their role.
type SetMemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Role   string    `json:"role" binding:"omitempty,oneof=member moderator admin"`
}
