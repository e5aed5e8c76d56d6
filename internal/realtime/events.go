package realtime

import (
	"time"

	"github.com/suPer8Hu/presence-hub/internal/chat"
)

// Broadcast event names.
const (
	EventUserStatus         = "user_status"
	EventConversationStatus = "conversation_status"
	EventTypingStatus       = "typing_status"
	EventNewMessage         = "new_message"
	EventMessageDelivered   = "message_delivered"
	EventMessageRead        = "message_read"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusJoined  = "joined"
)

// Event is one server -> client broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Session is one live connection of an authenticated user.
type Session struct {
	ID          string
	UserID      uint64
	ConnectedAt time.Time
}

type UserStatus struct {
	UserID   uint64    `json:"user_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

type ConversationStatus struct {
	UserID uint64 `json:"user_id"`
	Status string `json:"status"`
}

type TypingStatus struct {
	UserID uint64 `json:"user_id"`
	Status bool   `json:"status"`
}

type MessageDelivered struct {
	MessageID   uint64    `json:"message_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

type MessageRead struct {
	MessageID uint64    `json:"message_id"`
	ReadAt    time.Time `json:"read_at"`
}

// MessagePayload is the new_message body and the send_message reply.
type MessagePayload struct {
	ID              uint64    `json:"id"`
	Content         string    `json:"content"`
	SenderID        uint64    `json:"sender_id"`
	RecipientID     uint64    `json:"recipient_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Read            bool      `json:"read"`
	Delivered       bool      `json:"delivered"`
	ClientMessageID *string   `json:"client_message_id"`
}

func NewMessagePayload(m *chat.Message) *MessagePayload {
	return &MessagePayload{
		ID:              m.ID,
		Content:         m.Content,
		SenderID:        m.SenderID,
		RecipientID:     m.RecipientID,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
		Read:            m.Read,
		Delivered:       m.Delivered,
		ClientMessageID: m.ClientMessageID,
	}
}

func userStatusEvent(userID uint64, status string, at time.Time) Event {
	return Event{Type: EventUserStatus, Data: UserStatus{UserID: userID, Status: status, LastSeen: at}}
}

func typingEvent(userID uint64, typing bool) Event {
	return Event{Type: EventTypingStatus, Data: TypingStatus{UserID: userID, Status: typing}}
}
