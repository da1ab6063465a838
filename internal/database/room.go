package database

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/campus-chat/internal/models"
	"gorm.io/gorm"
)

// RoomSummary is a room as listed for one member.
type RoomSummary struct {
	Room        models.Room
	LastMessage *models.Message
	UnreadCount int64
}

// CreateGroupRoom creates a group room. The creator becomes its admin.
func (d *Database) CreateGroupRoom(name string, creatorID uuid.UUID, memberIDs []uuid.UUID) (*models.Room, error) {
	now := time.Now().UTC()
	room := models.Room{
		Name:      name,
		Type:      models.RoomTypeGroup,
		CreatedBy: creatorID,
		CreatedAt: now,
	}
	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		members := []models.Membership{{RoomID: room.ID, UserID: creatorID, Role: models.RoleAdmin, JoinedAt: now}}
		for _, id := range memberIDs {
			if id == creatorID {
				continue
			}
			members = append(members, models.Membership{RoomID: room.ID, UserID: id, Role: models.RoleMember, JoinedAt: now})
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return d.GetRoom(room.ID)
}

func (d *Database) GetRoom(id uuid.UUID) (*models.Room, error) {
	var room models.Room
	if err := d.db.Preload("Members.User").First(&room, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

// GetOrCreatePrivateRoom returns the private room between a and b, creating
// it if needed. created reports whether this call inserted it. Two callers
// racing to create the same pair both end up with the row that won the
// unique pair key.
func (d *Database) GetOrCreatePrivateRoom(a, b uuid.UUID) (room *models.Room, created bool, err error) {
	key := models.PairKey(a, b)
	if room, err = d.findPrivateRoom(key); !errors.Is(err, ErrNotFound) {
		return room, false, err
	}

	now := time.Now().UTC()
	newRoom := models.Room{
		Type:      models.RoomTypePrivate,
		PairKey:   &key,
		CreatedBy: a,
		CreatedAt: now,
	}
	err = d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&newRoom).Error; err != nil {
			return err
		}
		members := []models.Membership{
			{RoomID: newRoom.ID, UserID: a, Role: models.RoleMember, JoinedAt: now},
			{RoomID: newRoom.ID, UserID: b, Role: models.RoleMember, JoinedAt: now},
		}
		return tx.Create(&members).Error
	})
	if errors.Is(translate(err), ErrDuplicated) {
		// Lost the race; the winner's room is committed.
		room, err = d.findPrivateRoom(key)
		return room, false, err
	}
	if err != nil {
		return nil, false, translate(err)
	}
	room, err = d.GetRoom(newRoom.ID)
	return room, err == nil, err
}

func (d *Database) findPrivateRoom(key string) (*models.Room, error) {
	var room models.Room
	err := d.db.Preload("Members.User").Where("pair_key = ?", key).First(&room).Error
	if err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

// GetUserRooms lists the rooms userID belongs to with their latest message
// and the user's unread count.
func (d *Database) GetUserRooms(userID uuid.UUID) ([]RoomSummary, error) {
	var memberships []models.Membership
	if err := d.db.Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		return nil, err
	}

	summaries := make([]RoomSummary, 0, len(memberships))
	for _, ms := range memberships {
		room, err := d.GetRoom(ms.RoomID)
		if err != nil {
			return nil, err
		}
		last, err := d.LastMessage(ms.RoomID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		unread, err := d.CountUnread(ms.RoomID, userID, ms.LastReadAt)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, RoomSummary{Room: *room, LastMessage: last, UnreadCount: unread})
	}
	return summaries, nil
}

func (d *Database) GetMembership(roomID, userID uuid.UUID) (*models.Membership, error) {
	var ms models.Membership
	err := d.db.Preload("User").Where("room_id = ? AND user_id = ?", roomID, userID).First(&ms).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, err
	}
	return &ms, nil
}

// RoomMemberIDs returns the user ids of everyone in the room.
func (d *Database) RoomMemberIDs(roomID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := d.db.Model(&models.Membership{}).Where("room_id = ?", roomID).Pluck("user_id", &ids).Error
	return ids, err
}

func (d *Database) AddUserToRoom(userID, roomID uuid.UUID, role string) error {
	ms := models.Membership{RoomID: roomID, UserID: userID, Role: role, JoinedAt: time.Now().UTC()}
	return translate(d.db.Create(&ms).Error)
}

func (d *Database) SetRole(roomID, userID uuid.UUID, role string) error {
	res := d.db.Model(&models.Membership{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotMember
	}
	return nil
}

// MarkRead moves the member's watermark to at if that is later than the
// stored one. advanced is false when the stored value already covered at.
func (d *Database) MarkRead(roomID, userID uuid.UUID, at time.Time) (ms *models.Membership, advanced bool, err error) {
	res := d.db.Model(&models.Membership{}).
		Where("room_id = ? AND user_id = ? AND last_read_at < ?", roomID, userID, at).
		Update("last_read_at", at)
	if res.Error != nil {
		return nil, false, res.Error
	}
	ms, err = d.GetMembership(roomID, userID)
	if err != nil {
		return nil, false, err
	}
	return ms, res.RowsAffected > 0, nil
}
