package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Inbound kinds.
const (
	EventConnect     = "connect"
	EventDisconnect  = "disconnect"
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventMarkRead    = "mark_read"
)

// Outbound kinds.
const (
	EventStatusChange        = "status_change"
	EventNewMessage          = "new_message"
	EventMessageNotification = "message_notification"
	EventMessageRead         = "message_read"
)

const (
	groupChannelPrefix = "group_"
	userChannelPrefix  = "user_"
)

// Event is the outbound envelope written to a connection.
type Event struct {
	Kind    string      `json:"kind"`
	Channel string      `json:"channel,omitempty"`
	Payload interface{} `json:"payload"`
}

// InboundEvent is what a client sends; the payload is decoded per kind.
type InboundEvent struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type ConnectPayload struct {
	Token string `json:"token" validate:"required"`
}

// RoomPayload accepts either the channel name ("group_<id>") or the bare group id.
type RoomPayload struct {
	Room    string `json:"room"`
	GroupID string `json:"group_id"`
}

func (p RoomPayload) Target() (uuid.UUID, error) {
	if p.Room != "" {
		return ParseGroupRef(p.Room)
	}
	return ParseGroupRef(p.GroupID)
}

type SendMessagePayload struct {
	GroupID string `json:"group_id" validate:"required"`
	Content string `json:"content" validate:"required,max=4000"`
}

type MarkReadPayload struct {
	MessageID int64 `json:"message_id" validate:"required,gt=0"`
}

type StatusChangePayload struct {
	UserID uuid.UUID `json:"user_id"`
	Status string    `json:"status"`
}

type NewMessagePayload struct {
	ID         int64     `json:"id"`
	Content    string    `json:"content"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"is_read"`
	GroupID    uuid.UUID `json:"group_id"`
}

type MessageNotificationPayload struct {
	GroupID        uuid.UUID `json:"group_id"`
	SenderName     string    `json:"sender_name"`
	ContentPreview string    `json:"content_preview"`
}

type MessageReadPayload struct {
	MessageID  int64     `json:"message_id"`
	ReaderID   uuid.UUID `json:"reader_id"`
	ReaderName string    `json:"reader_name"`
}

func NewMessageEvent(m *Message) Event {
	return Event{
		Kind:    EventNewMessage,
		Channel: GroupChannel(m.GroupID),
		Payload: NewMessagePayload{
			ID:         m.ID,
			Content:    m.Content,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Timestamp:  m.CreatedAt,
			IsRead:     m.IsRead,
			GroupID:    m.GroupID,
		},
	}
}

func GroupChannel(groupID uuid.UUID) string {
	return groupChannelPrefix + groupID.String()
}

func UserChannel(userID uuid.UUID) string {
	return userChannelPrefix + userID.String()
}

// ParseGroupRef reads a group id from "group_<id>" or a bare id.
func ParseGroupRef(ref string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimPrefix(strings.TrimSpace(ref), groupChannelPrefix))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid group reference %q: %w", ref, err)
	}
	return id, nil
}
