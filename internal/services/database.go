package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/campus-chat/internal/database"
	"github.com/thereayou/campus-chat/internal/models"
)

// Database is the repository the services need; *database.Database
// implements it.
type Database interface {
	SaveUser(user *models.User) error
	GetUser(id uuid.UUID) (*models.User, error)
	FindUserByEmail(email string) (*models.User, error)
	UpdateLastSeen(id uuid.UUID) error

	CreateGroupRoom(name string, creatorID uuid.UUID, memberIDs []uuid.UUID) (*models.Room, error)
	GetRoom(id uuid.UUID) (*models.Room, error)
	GetOrCreatePrivateRoom(a, b uuid.UUID) (*models.Room, bool, error)
	GetUserRooms(userID uuid.UUID) ([]database.RoomSummary, error)
	GetMembership(roomID, userID uuid.UUID) (*models.Membership, error)
	RoomMemberIDs(roomID uuid.UUID) ([]uuid.UUID, error)
	AddUserToRoom(userID, roomID uuid.UUID, role string) error
	SetRole(roomID, userID uuid.UUID, role string) error
	MarkRead(roomID, userID uuid.UUID, at time.Time) (*models.Membership, bool, error)

	SaveMessage(message *models.Message) (bool, error)
	GetMessage(id uuid.UUID) (*models.Message, error)
	GetRoomMessages(roomID uuid.UUID, limit int, beforeID *uuid.UUID) ([]models.Message, error)
	UpdateMessageFlags(id uuid.UUID, pinned, deleted *bool) (*models.Message, error)
	CountUnread(roomID, userID uuid.UUID, lastReadAt time.Time) (int64, error)
}

var _ Database = (*database.Database)(nil)
