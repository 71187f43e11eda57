package models

import (
	"time"
)

type ChatMessage struct {
	ID        uint      `gorm:"primaryKey"`
	ChatID    uint      `gorm:"not null;index:idx_chat_created,priority:1"`
	SenderID  uint      `gorm:"not null"`
	Content   string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_chat_created,priority:2"`

	Sender User `gorm:"foreignKey:SenderID"`
}

// Timestamp приводит время к виду, в котором оно хранится в базе:
// UTC с точностью до микросекунд.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func (ChatMessage) TableName() string { return "chat_messages" }
