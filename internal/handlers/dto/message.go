package dto

import (
	"time"

	"github.com/google/uuid"
)

type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	// Kind is "image" or "file".
	Kind string `json:"kind"`
}

// SendMessageRequest is the body of a message submission. ClientID is the
// sender's temporary id and is echoed back in the response and the feed.
type SendMessageRequest struct {
	ClientID   string      `json:"client_id" binding:"max=64"`
	Content    string      `json:"content"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

type MessageResponse struct {
	ID         uuid.UUID   `json:"id"`
	ClientID   string      `json:"client_id,omitempty"`
	RoomID     uuid.UUID   `json:"room_id"`
	UserID     uuid.UUID   `json:"user_id"`
	Content    string      `json:"content"`
	Attachment *Attachment `json:"attachment,omitempty"`
	IsPinned   bool        `json:"is_pinned"`
	IsDeleted  bool        `json:"is_deleted"`
	CreatedAt  time.Time   `json:"created_at"`
	User       *UserInfo   `json:"user,omitempty"`
}

type UserInfo struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
}

// MarkReadRequest moves the caller's read watermark. Without LastReadAt the
// server uses the current time.
type MarkReadRequest struct {
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}

type ModerateRequest struct {
	IsPinned  *bool `json:"is_pinned,omitempty"`
	IsDeleted *bool `json:"is_deleted,omitempty"`
}
