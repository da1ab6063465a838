package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/campus-chat/internal/handlers/dto"
	"github.com/thereayou/campus-chat/internal/middleware"
	"github.com/thereayou/campus-chat/internal/models"
)

const searchLimit = 20

// UserStore is the part of the repository the user handler reads.
type UserStore interface {
	GetUser(id uuid.UUID) (*models.User, error)
	SearchUsersByUsername(prefix string, limit int) ([]models.User, error)
	SetDmBlocked(id uuid.UUID, blocked bool) error
}

type UserHandler struct {
	db UserStore
}

func NewUserHandler(db UserStore) *UserHandler {
	return &UserHandler{db: db}
}

// GetMe возвращает информацию о текущем пользователе
func (h *UserHandler) GetMe(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	user, err := h.db.GetUser(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"email":        user.Email,
		"avatar_url":   user.AvatarURL,
		"dm_blocked":   user.DmBlocked,
		"created_at":   user.CreatedAt,
		"last_seen_at": user.LastSeenAt,
	})
}

// UpdateMe меняет настройки текущего пользователя
func (h *UserHandler) UpdateMe(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	var req struct {
		DmBlocked *bool `json:"dm_blocked"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DmBlocked != nil {
		if err := h.db.SetDmBlocked(userID, *req.DmBlocked); err != nil {
			respondError(c, err)
			return
		}
	}
	h.GetMe(c)
}

// SearchUsers поиск пользователей по началу username
func (h *UserHandler) SearchUsers(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter is required"})
		return
	}

	users, err := h.db.SearchUsersByUsername(query, searchLimit)
	if err != nil {
		respondError(c, err)
		return
	}

	result := make([]*dto.UserInfo, len(users))
	for i := range users {
		result[i] = dto.UserFromModel(&users[i])
	}
	c.JSON(http.StatusOK, gin.H{"users": result})
}
