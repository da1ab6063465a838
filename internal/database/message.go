package database

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/campus-chat/internal/models"
)

// SaveMessage inserts message. When the sender already stored a message with
// the same client id in the room, the stored row is loaded into message
// instead and created is false.
func (d *Database) SaveMessage(message *models.Message) (created bool, err error) {
	if message.ClientID != nil {
		existing, err := d.findByClientID(message.RoomID, message.UserID, *message.ClientID)
		if err == nil {
			*message = *existing
			return false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return false, err
		}
	}

	err = translate(d.db.Create(message).Error)
	if errors.Is(err, ErrDuplicated) && message.ClientID != nil {
		existing, ferr := d.findByClientID(message.RoomID, message.UserID, *message.ClientID)
		if ferr != nil {
			return false, ferr
		}
		*message = *existing
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, d.db.Preload("User").First(message, "id = ?", message.ID).Error
}

func (d *Database) findByClientID(roomID, userID uuid.UUID, clientID string) (*models.Message, error) {
	var message models.Message
	err := d.db.Preload("User").
		Where("room_id = ? AND user_id = ? AND client_id = ?", roomID, userID, clientID).
		First(&message).Error
	if err != nil {
		return nil, translate(err)
	}
	return &message, nil
}

func (d *Database) GetMessage(id uuid.UUID) (*models.Message, error) {
	var message models.Message
	if err := d.db.Preload("User").First(&message, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &message, nil
}

// UpdateMessageFlags applies moderation flags. Deletion is permanent, so a
// false deleted value is ignored.
func (d *Database) UpdateMessageFlags(id uuid.UUID, pinned, deleted *bool) (*models.Message, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if pinned != nil {
		updates["is_pinned"] = *pinned
	}
	if deleted != nil && *deleted {
		updates["is_deleted"] = true
	}
	res := d.db.Model(&models.Message{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return d.GetMessage(id)
}

// GetRoomMessages получает сообщения комнаты с пагинацией
func (d *Database) GetRoomMessages(roomID uuid.UUID, limit int, beforeID *uuid.UUID) ([]models.Message, error) {
	var messages []models.Message

	query := d.db.Where("room_id = ?", roomID)

	// Если указан beforeID, получаем сообщения до него
	if beforeID != nil {
		var beforeMsg models.Message
		if err := d.db.First(&beforeMsg, "id = ? AND room_id = ?", *beforeID, roomID).Error; err != nil {
			return nil, translate(err)
		}
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)",
			beforeMsg.CreatedAt, beforeMsg.CreatedAt, beforeMsg.ID)
	}

	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Preload("User").
		Find(&messages).Error

	if err != nil {
		return nil, err
	}

	// Разворачиваем порядок, чтобы старые сообщения были первыми
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (d *Database) LastMessage(roomID uuid.UUID) (*models.Message, error) {
	var message models.Message
	err := d.db.Where("room_id = ?", roomID).
		Order("created_at DESC, id DESC").
		Preload("User").
		First(&message).Error
	if err != nil {
		return nil, translate(err)
	}
	return &message, nil
}

// CountUnread counts other members' visible messages after lastReadAt.
func (d *Database) CountUnread(roomID, userID uuid.UUID, lastReadAt time.Time) (int64, error) {
	var n int64
	err := d.db.Model(&models.Message{}).
		Where("room_id = ? AND created_at > ? AND user_id != ? AND is_deleted = ?", roomID, lastReadAt, userID, false).
		Count(&n).Error
	return n, err
}
