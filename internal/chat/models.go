package chat

import "time"

// Message is a direct message between two users. The read/delivered columns are prefixed
// because READ is reserved in MySQL.
type Message struct {
	ID              uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID        uint64     `gorm:"not null;index:idx_chat_msg_sender_created,priority:1;index:uniq_chat_msg_client_id,unique,priority:1" json:"sender_id"`
	RecipientID     uint64     `gorm:"not null;index:idx_chat_msg_recipient_created,priority:1;index:uniq_chat_msg_client_id,unique,priority:2" json:"recipient_id"`
	Content         string     `gorm:"type:text;not null" json:"content"`
	Read            bool       `gorm:"column:is_read;not null;default:false" json:"read"`
	ReadAt          *time.Time `json:"read_at"`
	Delivered       bool       `gorm:"column:is_delivered;not null;default:false" json:"delivered"`
	DeliveredAt     *time.Time `json:"delivered_at"`
	ClientMessageID *string    `gorm:"type:varchar(100);index:uniq_chat_msg_client_id,unique,priority:3" json:"client_message_id"`
	CreatedAt       time.Time  `gorm:"index:idx_chat_msg_sender_created,priority:2;index:idx_chat_msg_recipient_created,priority:2" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Message) TableName() string { return "chat_messages" }

// Partner returns the other side of the conversation from userID's point of view.
func (m *Message) Partner(userID uint64) uint64 {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}
