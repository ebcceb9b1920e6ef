package domain

import (
	"time"

	"github.com/google/uuid"
)

type Group struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	CreatorID    uuid.UUID   `json:"creator_id"`
	IsDirectChat bool        `json:"is_direct_chat"`
	Members      []uuid.UUID `json:"members,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

const (
	MaxGroupNameLength        = 64
	MaxGroupDescriptionLength = 256
)

// DirectKey identifies the unordered pair of a direct chat, so (a, b) and (b, a)
// resolve to the same value.
func DirectKey(a, b uuid.UUID) string {
	as, bs := a.String(), b.String()
	if as > bs {
		as, bs = bs, as
	}
	return as + ":" + bs
}

// OtherMember returns the participant of a direct chat that is not userID.
func (g *Group) OtherMember(userID uuid.UUID) (uuid.UUID, bool) {
	if !g.IsDirectChat || len(g.Members) != 2 {
		return uuid.Nil, false
	}
	switch userID {
	case g.Members[0]:
		return g.Members[1], true
	case g.Members[1]:
		return g.Members[0], true
	}
	return uuid.Nil, false
}

// Conversation is one row of a user's conversation list.
type Conversation struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	IsDirect        bool       `json:"is_direct"`
	Description     string     `json:"description,omitempty"`
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	Status          string     `json:"status,omitempty"`
	LastMessage     *string    `json:"last_message"`
	LastMessageTime *time.Time `json:"last_message_time"`
	UnreadCount     int        `json:"unread_count"`
}
