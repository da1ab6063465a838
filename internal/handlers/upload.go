package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/campus-chat/internal/handlers/dto"
	"github.com/thereayou/campus-chat/internal/metrics"
	"github.com/thereayou/campus-chat/internal/middleware"
	"github.com/thereayou/campus-chat/internal/services"
	"github.com/thereayou/campus-chat/internal/storage"
)

type UploadHandler struct {
	chat  *services.ChatService
	store storage.Store
}

func NewUploadHandler(chat *services.ChatService, store storage.Store) *UploadHandler {
	return &UploadHandler{chat: chat, store: store}
}

// Upload stores the multipart field "file" for a room the caller belongs to.
func (h *UploadHandler) Upload(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.chat.CheckMember(roomID, userID); err != nil {
		respondError(c, err)
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	obj, err := h.store.Put(c.Request.Context(), roomID, fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		respondError(c, err)
		return
	}
	metrics.AttachmentsUploaded.WithLabelValues(obj.Kind).Inc()
	c.JSON(http.StatusCreated, dto.Attachment{URL: obj.URL, Name: obj.Name, Kind: obj.Kind})
}
