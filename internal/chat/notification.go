package chat

import "time"

type NoticeStatus string

const (
	NoticeQueued   NoticeStatus = "queued"
	NoticeNotified NoticeStatus = "notified"
	NoticeSkipped  NoticeStatus = "skipped" // message was read before the worker got to it
	NoticeFailed   NoticeStatus = "failed"
)

// Notification is an offline notice for a message whose recipient had no live connection.
type Notification struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	UserID    uint64 `gorm:"index;not null"`
	SenderID  uint64 `gorm:"not null"`
	MessageID uint64 `gorm:"uniqueIndex;not null"`

	Status NoticeStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Notification) TableName() string { return "chat_notifications" }
