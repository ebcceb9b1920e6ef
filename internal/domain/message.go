package domain

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID         int64     `json:"id"`
	GroupID    uuid.UUID `json:"group_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"timestamp"`
}

type ReadReceipt struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

const (
	MaxMessageLength = 4000
	PreviewLength    = 30
)

// Preview cuts content to PreviewLength characters and appends "..." when
// something was cut.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}
	return string(runes[:PreviewLength]) + "..."
}
