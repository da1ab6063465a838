package dto

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/thereayou/campus-chat/internal/messaging"
	"github.com/thereayou/campus-chat/internal/models"
)

func UserFromModel(u *models.User) *UserInfo {
	if u == nil || u.ID == uuid.Nil {
		return nil
	}
	return &UserInfo{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}

func MessageFromModel(m *models.Message) MessageResponse {
	out := MessageResponse{
		ID:        m.ID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Content:   m.Content,
		IsPinned:  m.IsPinned,
		IsDeleted: m.IsDeleted,
		CreatedAt: m.CreatedAt,
		User:      UserFromModel(&m.User),
	}
	if m.ClientID != nil {
		out.ClientID = *m.ClientID
	}
	if m.AttachmentURL != "" {
		out.Attachment = &Attachment{URL: m.AttachmentURL, Name: m.AttachmentName, Kind: m.AttachmentKind}
	}
	return out
}

func MembershipFromModel(ms *models.Membership) MembershipResponse {
	return MembershipResponse{
		RoomID:     ms.RoomID,
		UserID:     ms.UserID,
		Username:   ms.User.Username,
		Role:       ms.Role,
		LastReadAt: ms.LastReadAt,
	}
}

func RoomFromModel(room *models.Room, last *models.Message, unread int64) RoomResponse {
	out := RoomResponse{
		ID:          room.ID,
		Type:        room.Type,
		Name:        room.Name,
		Members:     make([]MembershipResponse, 0, len(room.Members)),
		UnreadCount: unread,
		CreatedAt:   room.CreatedAt,
	}
	for i := range room.Members {
		out.Members = append(out.Members, MembershipFromModel(&room.Members[i]))
	}
	if last != nil {
		lm := MessageFromModel(last)
		out.LastMessage = &lm
	}
	return out
}

// Client side conversions into the messaging core's types.

func (m MessageResponse) ToMessaging() (messaging.Message, error) {
	out := messaging.Message{
		ID:        m.ID.String(),
		TempID:    m.ClientID,
		RoomID:    m.RoomID.String(),
		SenderID:  m.UserID.String(),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Pinned:    m.IsPinned,
		Deleted:   m.IsDeleted,
		State:     messaging.Confirmed,
	}
	if m.Attachment != nil {
		att, err := messaging.NewAttachment(m.Attachment.Kind, m.Attachment.URL, m.Attachment.Name)
		if err != nil {
			return messaging.Message{}, err
		}
		out.Attachment = att
	}
	return out, nil
}

func (ms MembershipResponse) ToMessaging() messaging.Membership {
	return messaging.Membership{
		UserID:     ms.UserID.String(),
		RoomID:     ms.RoomID.String(),
		Username:   ms.Username,
		Role:       messaging.Role(ms.Role),
		LastReadAt: ms.LastReadAt,
	}
}

func (r RoomResponse) ToMessaging() (messaging.Room, error) {
	kind, err := messaging.ParseRoomKind(r.Type)
	if err != nil {
		return messaging.Room{}, err
	}
	out := messaging.Room{
		ID:          r.ID.String(),
		Kind:        kind,
		Name:        r.Name,
		UnreadCount: int(r.UnreadCount),
		CreatedAt:   r.CreatedAt,
	}
	for _, ms := range r.Members {
		out.Members = append(out.Members, ms.ToMessaging())
	}
	if r.LastMessage != nil {
		last, err := r.LastMessage.ToMessaging()
		if err != nil {
			return messaging.Room{}, err
		}
		out.LastMessage = &last
	}
	return out, nil
}

// AttachmentFromMessaging is the wire form of a, or nil.
func AttachmentFromMessaging(a messaging.Attachment) *Attachment {
	if a == nil {
		return nil
	}
	url, name := a.Descriptor()
	return &Attachment{URL: url, Name: name, Kind: messaging.AttachmentKind(a)}
}

// DecodeFrame turns a feed frame into a change event. Frames for tables or
// events the client does not track return ok == false.
func DecodeFrame(data []byte) (ev messaging.ChangeEvent, ok bool, err error) {
	var frame FeedFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ev, false, fmt.Errorf("decode feed frame: %w", err)
	}

	switch frame.Table {
	case TableMessages:
		var row MessageResponse
		if err := json.Unmarshal(frame.Row, &row); err != nil {
			return ev, false, fmt.Errorf("decode message row: %w", err)
		}
		m, err := row.ToMessaging()
		if err != nil {
			return ev, false, err
		}
		ev.Message = &m
		switch frame.Event {
		case EventInserted:
			ev.Kind = messaging.MessageInserted
		case EventUpdated:
			ev.Kind = messaging.MessageUpdated
		default:
			return ev, false, nil
		}
	case TableMemberships:
		if frame.Event != EventUpdated {
			return ev, false, nil
		}
		var row MembershipResponse
		if err := json.Unmarshal(frame.Row, &row); err != nil {
			return ev, false, fmt.Errorf("decode membership row: %w", err)
		}
		ms := row.ToMessaging()
		ev.Kind = messaging.MembershipUpdated
		ev.Membership = &ms
	default:
		return ev, false, nil
	}
	return ev, true, nil
}
