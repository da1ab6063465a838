package messaging

import (
	"fmt"
	"strings"
	"time"
)

// RoomKind distinguishes two-party rooms from named group rooms.
type RoomKind int

const (
	RoomPrivate RoomKind = iota + 1
	RoomGroup
)

func (k RoomKind) String() string {
	switch k {
	case RoomPrivate:
		return "private"
	case RoomGroup:
		return "group"
	default:
		return "unknown"
	}
}

// ParseRoomKind accepts the wire names "private" and "group".
func ParseRoomKind(s string) (RoomKind, error) {
	switch strings.ToLower(s) {
	case "private", "direct":
		return RoomPrivate, nil
	case "group":
		return RoomGroup, nil
	}
	return 0, fmt.Errorf("%w: unknown room kind %q", ErrValidation, s)
}

// Role is a member's standing within a room.
type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleMember || r == RoleModerator || r == RoleAdmin
}

// CanModerate reports whether the role may pin and delete messages.
func (r Role) CanModerate() bool {
	return r == RoleModerator || r == RoleAdmin
}

// Membership is a user's participation record in a room.
type Membership struct {
	UserID     string
	RoomID     string
	Username   string
	Role       Role
	LastReadAt time.Time
}

// Room is a conversation container as seen by the viewing user.
type Room struct {
	ID          string
	Kind        RoomKind
	Name        string
	Members     []Membership
	LastMessage *Message
	UnreadCount int
	CreatedAt   time.Time
}

// LastActivity is the timestamp the directory sorts by.
func (r *Room) LastActivity() time.Time {
	if r.LastMessage != nil {
		return r.LastMessage.CreatedAt
	}
	return r.CreatedAt
}

// Member returns the membership row for userID, or nil.
func (r *Room) Member(userID string) *Membership {
	for i := range r.Members {
		if r.Members[i].UserID == userID {
			return &r.Members[i]
		}
	}
	return nil
}

// Partner returns the other participant of a private room.
func (r *Room) Partner(self string) (*Membership, bool) {
	if r.Kind != RoomPrivate {
		return nil, false
	}
	for i := range r.Members {
		if r.Members[i].UserID != self {
			return &r.Members[i], true
		}
	}
	return nil, false
}

// DisplayName is the group name, or the other participant for private rooms.
func (r *Room) DisplayName(self string) string {
	if r.Kind == RoomGroup {
		return r.Name
	}
	if p, ok := r.Partner(self); ok {
		if p.Username != "" {
			return p.Username
		}
		return p.UserID
	}
	return r.Name
}

func (r Room) clone() Room {
	out := r
	out.Members = append([]Membership(nil), r.Members...)
	if r.LastMessage != nil {
		m := *r.LastMessage
		out.LastMessage = &m
	}
	return out
}

// Attachment is one of ImageAttachment or FileAttachment. A nil Attachment
// means the message carries none.
type Attachment interface {
	attachment()
	Descriptor() (url, name string)
}

type ImageAttachment struct {
	URL  string
	Name string
}

type FileAttachment struct {
	URL  string
	Name string
}

func (ImageAttachment) attachment() {}
func (FileAttachment) attachment()  {}

func (a ImageAttachment) Descriptor() (string, string) { return a.URL, a.Name }
func (a FileAttachment) Descriptor() (string, string)  { return a.URL, a.Name }

// AttachmentKind returns "image", "file", or "" for no attachment.
func AttachmentKind(a Attachment) string {
	switch a.(type) {
	case ImageAttachment:
		return "image"
	case FileAttachment:
		return "file"
	default:
		return ""
	}
}

// NewAttachment builds an attachment from its wire kind. An empty kind and url
// yields nil.
func NewAttachment(kind, url, name string) (Attachment, error) {
	switch kind {
	case "":
		if url == "" {
			return nil, nil
		}
		return FileAttachment{URL: url, Name: name}, nil
	case "image":
		return ImageAttachment{URL: url, Name: name}, nil
	case "file":
		return FileAttachment{URL: url, Name: name}, nil
	}
	return nil, fmt.Errorf("%w: unknown attachment kind %q", ErrValidation, kind)
}

// DeliveryState tracks a message through the optimistic send lifecycle.
type DeliveryState int

const (
	Pending DeliveryState = iota
	Confirmed
	Failed
)

func (s DeliveryState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("DeliveryState(%d)", int(s))
	}
}

// Message is one entry of a room's stream. ID is empty until the server
// confirms it; TempID is set on locally submitted messages and echoed back
// by the server as the client id.
type Message struct {
	ID         string
	TempID     string
	RoomID     string
	SenderID   string
	Content    string
	Attachment Attachment
	CreatedAt  time.Time
	Pinned     bool
	Deleted    bool
	State      DeliveryState
	Err        error
}

// Key identifies the entry within a stream.
func (m *Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.TempID
}

// Before is the stream order: creation time, then id.
func (m *Message) Before(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.Key() < o.Key()
}

// EventKind enumerates change feed notifications.
type EventKind int

const (
	MessageInserted EventKind = iota + 1
	MessageUpdated
	MembershipUpdated
	// FeedResynced is emitted by a feed after it reconnects; events may have
	// been missed while it was down.
	FeedResynced
)

func (k EventKind) String() string {
	switch k {
	case MessageInserted:
		return "MESSAGE_INSERTED"
	case MessageUpdated:
		return "MESSAGE_UPDATED"
	case MembershipUpdated:
		return "MEMBERSHIP_UPDATED"
	case FeedResynced:
		return "FEED_RESYNCED"
	default:
		return "UNKNOWN"
	}
}

// ChangeEvent is a row-level notification from the change feed.
type ChangeEvent struct {
	Kind       EventKind
	Message    *Message
	Membership *Membership
}

// Upload is a file to be placed in object storage before sending.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// IsImage reports whether the upload should be sent as an image attachment.
func (u Upload) IsImage() bool {
	return strings.HasPrefix(u.ContentType, "image/")
}

// StoredFile is what object storage returns for an upload.
type StoredFile struct {
	URL  string
	Name string
}

// ModerationPatch carries the flags a moderation request changes.
type ModerationPatch struct {
	Pinned  *bool
	Deleted *bool
}

// SendRequest is the payload handed to DataAPI.SendMessage.
type SendRequest struct {
	RoomID     string
	ClientID   string
	Content    string
	Attachment Attachment
}
