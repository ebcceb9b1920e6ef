package handler

import (
	"wequack/internal/config"
	"wequack/internal/hub"
	"wequack/internal/service"
	"wequack/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Auth      *AuthHandler
	User      *UserHandler
	Chat      *ChatHandler
	WebSocket *WebSocketHandler
}

// NewHandlers builds the HTTP handlers. db may be nil when the server runs
// on the in-memory store.
func NewHandlers(services *service.Services, h *hub.Hub, router *hub.Router, db Pinger, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(h, db),
		Auth:      NewAuthHandler(services.Auth, log),
		User:      NewUserHandler(services.User, log),
		Chat:      NewChatHandler(services.Messaging, services.User, log),
		WebSocket: NewWebSocketHandler(services.Auth, router, cfg.CORS.AllowedOrigins, log),
	}
}
