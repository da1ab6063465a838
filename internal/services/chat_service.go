package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/thereayou/campus-chat/internal/broker"
	"github.com/thereayou/campus-chat/internal/database"
	"github.com/thereayou/campus-chat/internal/handlers/dto"
	"github.com/thereayou/campus-chat/internal/messaging"
	"github.com/thereayou/campus-chat/internal/metrics"
	"github.com/thereayou/campus-chat/internal/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ChatService is the server of record for rooms, messages, read watermarks
// and moderation. Every committed change is published to the broker as a
// feed frame addressed to the room's members.
type ChatService struct {
	db     Database
	broker broker.Broker
	log    zerolog.Logger
	locks  *roomLocks
	now    func() time.Time
}

func NewChatService(db Database, b broker.Broker, log zerolog.Logger) *ChatService {
	return &ChatService{
		db:     db,
		broker: b,
		log:    log.With().Str("component", "chat").Logger(),
		locks:  newRoomLocks(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *ChatService) ListRooms(userID uuid.UUID) ([]dto.RoomResponse, error) {
	summaries, err := s.db.GetUserRooms(userID)
	if err != nil {
		return nil, err
	}
	rooms := make([]dto.RoomResponse, 0, len(summaries))
	for i := range summaries {
		sum := &summaries[i]
		rooms = append(rooms, dto.RoomFromModel(&sum.Room, sum.LastMessage, sum.UnreadCount))
	}
	return rooms, nil
}

// CreateGroupRoom creates a group room; the caller becomes its admin.
func (s *ChatService) CreateGroupRoom(userID uuid.UUID, req dto.CreateGroupRequest) (*dto.RoomResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: room name is required", ErrValidation)
	}
	for _, id := range req.MemberIDs {
		if _, err := s.db.GetUser(id); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
			}
			return nil, err
		}
	}
	room, err := s.db.CreateGroupRoom(name, userID, req.MemberIDs)
	if err != nil {
		return nil, err
	}
	resp := dto.RoomFromModel(room, nil, 0)
	return &resp, nil
}

// OpenPrivateRoom returns the private room between userID and targetID,
// creating it on first use. Repeated and concurrent calls for the same pair
// return the same room.
func (s *ChatService) OpenPrivateRoom(userID, targetID uuid.UUID) (*dto.RoomResponse, error) {
	if userID == targetID {
		return nil, fmt.Errorf("%w: cannot open a private room with yourself", ErrValidation)
	}
	target, err := s.db.GetUser(targetID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", targetID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if target.DmBlocked {
		return nil, fmt.Errorf("%w: %s does not accept private messages", ErrForbidden, target.Username)
	}

	room, created, err := s.db.GetOrCreatePrivateRoom(userID, targetID)
	if err != nil {
		return nil, err
	}
	if created {
		metrics.PrivateRoomsCreated.Inc()
		s.log.Info().Str("room", room.ID.String()).Msg("private room created")
	}
	last, err := s.lastMessage(room.ID)
	if err != nil {
		return nil, err
	}
	var unread int64
	if me := room.Member(userID); me != nil {
		if unread, err = s.db.CountUnread(room.ID, userID, me.LastReadAt); err != nil {
			return nil, err
		}
	}
	resp := dto.RoomFromModel(room, last, unread)
	return &resp, nil
}

func (s *ChatService) lastMessage(roomID uuid.UUID) (*models.Message, error) {
	msgs, err := s.db.GetRoomMessages(roomID, 1, nil)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

// member loads the caller's membership; outsiders see the room as missing.
func (s *ChatService) member(roomID, userID uuid.UUID) (*models.Membership, error) {
	ms, err := s.db.GetMembership(roomID, userID)
	if errors.Is(err, database.ErrNotMember) {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	return ms, err
}

// CheckMember returns ErrNotFound unless userID belongs to roomID.
func (s *ChatService) CheckMember(roomID, userID uuid.UUID) error {
	_, err := s.member(roomID, userID)
	return err
}

// ListMessages returns up to limit messages before the given message, oldest
// first.
func (s *ChatService) ListMessages(userID, roomID uuid.UUID, before *uuid.UUID, limit int) ([]dto.MessageResponse, error) {
	if _, err := s.member(roomID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	msgs, err := s.db.GetRoomMessages(roomID, limit, before)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown cursor", ErrValidation)
	}
	if err != nil {
		return nil, err
	}
	out := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, dto.MessageFromModel(&msgs[i]))
	}
	return out, nil
}

// SendMessage stores a message. A request repeating a client id the sender
// already used in the room returns the stored message and publishes nothing.
func (s *ChatService) SendMessage(ctx context.Context, userID, roomID uuid.UUID, req dto.SendMessageRequest) (*dto.MessageResponse, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" && req.Attachment == nil {
		return nil, fmt.Errorf("%w: message is empty", ErrValidation)
	}
	if utf8.RuneCountInString(content) > messaging.MaxContentLength {
		return nil, fmt.Errorf("%w: message longer than %d characters", ErrValidation, messaging.MaxContentLength)
	}
	if req.Attachment != nil {
		if req.Attachment.URL == "" || (req.Attachment.Kind != "image" && req.Attachment.Kind != "file") {
			return nil, fmt.Errorf("%w: bad attachment", ErrValidation)
		}
	}
	if _, err := s.member(roomID, userID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		RoomID:  roomID,
		UserID:  userID,
		Content: content,
	}
	if req.ClientID != "" {
		clientID := req.ClientID
		msg.ClientID = &clientID
	}
	if a := req.Attachment; a != nil {
		msg.AttachmentURL, msg.AttachmentName, msg.AttachmentKind = a.URL, a.Name, a.Kind
	}

	unlock := s.locks.lock(roomID)
	msg.CreatedAt = s.now()
	created, err := s.db.SaveMessage(msg)
	unlock()
	if err != nil {
		return nil, err
	}

	resp := dto.MessageFromModel(msg)
	if !created {
		metrics.DuplicateSends.Inc()
		return &resp, nil
	}

	room, err := s.db.GetRoom(roomID)
	if err == nil {
		metrics.MessagesSent.WithLabelValues(room.Type).Inc()
	}
	s.publish(ctx, roomID, dto.EventInserted, dto.TableMessages, resp)
	return &resp, nil
}

// MarkRead moves the caller's watermark to at, or to now when at is nil.
// Values in the future are clamped to now; the stored value never moves
// backwards.
func (s *ChatService) MarkRead(ctx context.Context, userID, roomID uuid.UUID, at *time.Time) (*dto.MembershipResponse, error) {
	if _, err := s.member(roomID, userID); err != nil {
		return nil, err
	}
	now := s.now()
	mark := now
	if at != nil && at.Before(now) {
		mark = at.UTC()
	}

	unlock := s.locks.lock(roomID)
	ms, advanced, err := s.db.MarkRead(roomID, userID, mark)
	unlock()
	if err != nil {
		return nil, err
	}

	resp := dto.MembershipFromModel(ms)
	if advanced {
		s.publish(ctx, roomID, dto.EventUpdated, dto.TableMemberships, resp)
	}
	return &resp, nil
}

// Moderate pins, unpins or soft-deletes a message. Only moderators and admins
// of group rooms may do so, and deletion cannot be undone.
func (s *ChatService) Moderate(ctx context.Context, userID, messageID uuid.UUID, req dto.ModerateRequest) (*dto.MessageResponse, error) {
	if req.IsPinned == nil && req.IsDeleted == nil {
		return nil, fmt.Errorf("%w: nothing to change", ErrValidation)
	}
	if req.IsDeleted != nil && !*req.IsDeleted {
		return nil, fmt.Errorf("%w: deleted messages cannot be restored", ErrValidation)
	}

	msg, err := s.db.GetMessage(messageID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	ms, err := s.member(msg.RoomID, userID)
	if err != nil {
		return nil, err
	}
	room, err := s.db.GetRoom(msg.RoomID)
	if err != nil {
		return nil, err
	}
	if room.Type != models.RoomTypeGroup {
		return nil, fmt.Errorf("%w: moderation is only available in group rooms", ErrForbidden)
	}
	if !messaging.Role(ms.Role).CanModerate() {
		return nil, fmt.Errorf("%w: moderator role required", ErrForbidden)
	}

	unlock := s.locks.lock(msg.RoomID)
	updated, err := s.db.UpdateMessageFlags(messageID, req.IsPinned, req.IsDeleted)
	unlock()
	if err != nil {
		return nil, err
	}

	switch {
	case req.IsDeleted != nil:
		metrics.ModerationActions.WithLabelValues("delete").Inc()
	case *req.IsPinned:
		metrics.ModerationActions.WithLabelValues("pin").Inc()
	default:
		metrics.ModerationActions.WithLabelValues("unpin").Inc()
	}

	resp := dto.MessageFromModel(updated)
	s.publish(ctx, msg.RoomID, dto.EventUpdated, dto.TableMessages, resp)
	return &resp, nil
}

// SetMember adds a user to a group room, or changes the role of an existing
// member. Only the room's admins may do this.
func (s *ChatService) SetMember(ctx context.Context, actorID, roomID uuid.UUID, req dto.SetMemberRequest) (*dto.MembershipResponse, error) {
	role := req.Role
	if role == "" {
		role = models.RoleMember
	}
	if !messaging.Role(role).Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	actor, err := s.member(roomID, actorID)
	if err != nil {
		return nil, err
	}
	room, err := s.db.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	if room.Type != models.RoomTypeGroup {
		return nil, fmt.Errorf("%w: private rooms have fixed members", ErrForbidden)
	}
	if actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	if _, err := s.db.GetUser(req.UserID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", req.UserID, ErrNotFound)
		}
		return nil, err
	}

	unlock := s.locks.lock(roomID)
	if room.Member(req.UserID) == nil {
		err = s.db.AddUserToRoom(req.UserID, roomID, role)
	} else {
		err = s.db.SetRole(roomID, req.UserID, role)
	}
	var ms *models.Membership
	if err == nil {
		ms, err = s.db.GetMembership(roomID, req.UserID)
	}
	unlock()
	if err != nil {
		return nil, err
	}

	resp := dto.MembershipFromModel(ms)
	s.publish(ctx, roomID, dto.EventUpdated, dto.TableMemberships, resp)
	return &resp, nil
}

// publish sends a feed frame to the room's members. The change is already
// committed, so failures are logged and clients catch up on their next fetch.
func (s *ChatService) publish(ctx context.Context, roomID uuid.UUID, event, table string, row any) {
	recipients, err := s.db.RoomMemberIDs(roomID)
	if err != nil {
		s.log.Error().Err(err).Str("room", roomID.String()).Msg("load recipients")
		return
	}
	frame, err := dto.NewFeedFrame(event, table, row)
	if err != nil {
		s.log.Error().Err(err).Msg("encode feed frame")
		return
	}
	if err := s.broker.Publish(ctx, broker.Envelope{Recipients: recipients, Frame: frame}); err != nil {
		s.log.Error().Err(err).Str("room", roomID.String()).Str("table", table).Msg("publish feed frame")
	}
}
