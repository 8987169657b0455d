package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/voxaura/internal/api/handlers"
	"github.com/yoockh/voxaura/internal/api/middleware"
)

type Deps struct {
	Session      *handlers.SessionHandler
	Conversation *handlers.ConversationHandler
	WS           *handlers.WSHandler
	Metrics      http.Handler
	JWT          middleware.JWTConfig
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/status", d.Session.Status)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	// WebSocket, token optional
	r.GET("/ws", middleware.OptionalJWT(d.JWT), d.WS.Serve)

	// Admin routes (JWT + role)
	admin := r.Group("/admin")
	admin.Use(middleware.JWTAuth(d.JWT), middleware.RequireAdmin())

	admin.GET("/sessions", d.Session.List)
	admin.GET("/sessions/:session_id/conversation", d.Conversation.ListBySession)
}
