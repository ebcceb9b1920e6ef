package service

import (
	"wequack/internal/config"
	"wequack/internal/repository"
	"wequack/pkg/logger"
)

type Services struct {
	Auth      AuthService
	User      UserService
	Presence  PresenceService
	Rooms     RoomDirectory
	Messaging MessagingService
	RateLimit RateLimitService
}

// NewServices wires the services around publisher, which delivers events to
// live connections.
func NewServices(repos *repository.Repositories, cfg *config.Config, publisher Publisher, log logger.Logger) *Services {
	rooms := NewRoomDirectory(repos.Group, log)

	return &Services{
		Auth:      NewAuthService(repos.User, cfg.JWT, log),
		User:      NewUserService(repos.User, log),
		Presence:  NewPresenceService(repos.User, publisher, log),
		Rooms:     rooms,
		Messaging: NewMessagingService(repos.User, repos.Group, repos.Message, rooms, publisher, log),
		RateLimit: NewRateLimitService(repos.RateLimit, cfg.RateLimit, log),
	}
}
