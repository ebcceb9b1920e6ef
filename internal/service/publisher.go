package service

import (
	"github.com/google/uuid"
	"wequack/internal/domain"
)

// Publisher delivers outbound events to live connections. Every method is
// fire-and-forget: a connection that cannot take the event is skipped and the
// rest still receive it.
type Publisher interface {
	// Broadcast reaches every authenticated connection.
	Broadcast(evt domain.Event)
	PublishToConnections(connIDs []string, evt domain.Event)
	// PublishToUser reaches every connection of the user (the user_<id> channel).
	PublishToUser(userID uuid.UUID, evt domain.Event)
}
