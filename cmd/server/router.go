package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thereayou/campus-chat/internal/handlers"
	"github.com/thereayou/campus-chat/internal/middleware"
	"github.com/thereayou/campus-chat/internal/services"
	"github.com/thereayou/campus-chat/pkg/auth"
)

type routes struct {
	auth    *handlers.AuthHandler
	users   *handlers.UserHandler
	rooms   *handlers.RoomHandler
	msgs    *handlers.MessageHandler
	uploads *handlers.UploadHandler
	ws      *handlers.WebSocketHandler

	jwt       *auth.JWTManager
	blacklist services.Blacklist
	filesDir  string
	health    gin.HandlerFunc
}

func APIEndpoints(r *gin.Engine, h routes) {
	requireAuth := middleware.AuthMiddleware(h.jwt, h.blacklist)

	// Auth endpoints
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", h.auth.Register)
		authGroup.POST("/login", h.auth.Login)
		authGroup.POST("/logout", requireAuth, h.auth.Logout)
	}

	// API endpoints
	api := r.Group("/api/v1", requireAuth)
	{
		api.GET("/users/me", h.users.GetMe)
		api.PATCH("/users/me", h.users.UpdateMe)
		api.GET("/users/search", h.users.SearchUsers)

		api.GET("/rooms", h.rooms.GetMyRooms)
		api.POST("/rooms", h.rooms.CreateRoom)
		api.POST("/rooms/private", h.rooms.OpenPrivateRoom)
		api.PUT("/rooms/:id/members", h.rooms.SetMember)

		api.GET("/rooms/:id/messages", h.msgs.GetRoomMessages)
		api.POST("/rooms/:id/messages", h.msgs.SendMessage)
		api.POST("/rooms/:id/read", h.msgs.MarkRead)
		api.POST("/rooms/:id/attachments", h.uploads.Upload)
		api.PATCH("/messages/:id", h.msgs.Moderate)
	}

	r.GET("/ws", middleware.WSAuthMiddleware(h.jwt, h.blacklist), h.ws.HandleWebSocket)
	r.Static("/files", h.filesDir)

	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}
