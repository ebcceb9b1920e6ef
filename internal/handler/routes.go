package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"wequack/internal/middleware"
)

// RegisterRoutes mounts the public endpoints and the /api/v1 API on r.
func RegisterRoutes(r *gin.Engine, h *Handlers, auth *middleware.AuthMiddleware, rateLimit *middleware.RateLimitMiddleware) {
	r.GET("/health", h.Health.Check)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", h.WebSocket.Handle)

	api := r.Group("/api/v1")
	api.Use(rateLimit.Limit())
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", h.Auth.Register)
			authGroup.POST("/login", h.Auth.Login)
		}

		protected := api.Group("")
		protected.Use(auth.RequireAuth())
		{
			protected.GET("/users", h.User.List)
			protected.GET("/users/me", h.User.GetMe)

			protected.GET("/conversations", h.Chat.ListConversations)
			protected.POST("/groups", h.Chat.CreateGroup)
			protected.GET("/groups/:id/messages", h.Chat.GetMessages)
			protected.POST("/groups/:id/members", h.Chat.AddMember)
			protected.POST("/direct-chats/:userId", h.Chat.StartDirectChat)
			protected.POST("/messages/:id/read", h.Chat.MarkRead)
		}
	}
}
