package models

import (
	"time"
)

type ChatType string

const (
	ChatTypePersonal ChatType = "personal"
	ChatTypeGroup    ChatType = "group"
)

type Chat struct {
	ID        uint     `gorm:"primaryKey"`
	Type      ChatType `gorm:"not null;check:type IN ('personal','group')"`
	CreatedAt time.Time

	// Связи
	Members      []ChatMember      `gorm:"foreignKey:ChatID"`
	PersonalData *PersonalChatData `gorm:"foreignKey:ChatID"`
	GroupData    *GroupChatData    `gorm:"foreignKey:ChatID"`
}

// PersonalChatData хранит пару собеседников в упорядоченном виде (low < high),
// уникальный индекс не даёт создать второй личный чат для той же пары.
type PersonalChatData struct {
	ChatID     uint `gorm:"primaryKey"`
	UserLowID  uint `gorm:"not null;uniqueIndex:idx_personal_pair"`
	UserHighID uint `gorm:"not null;uniqueIndex:idx_personal_pair"`
}

type GroupChatData struct {
	ChatID uint   `gorm:"primaryKey"`
	Name   string `gorm:"not null"`
	Avatar string
}

// ChatMember: участник чата. ReadBefore: все сообщения с created_at <= ReadBefore
// считаются прочитанными; значение только растёт.
type ChatMember struct {
	ChatID     uint `gorm:"primaryKey"`
	UserID     uint `gorm:"primaryKey;index"`
	ReadBefore *time.Time
	JoinedAt   time.Time

	User User `gorm:"foreignKey:UserID"`
}

// PersonalPair возвращает пару id в каноническом порядке
func PersonalPair(a, b uint) (low, high uint) {
	if a < b {
		return a, b
	}
	return b, a
}

func (ChatMember) TableName() string       { return "chat_members" }
func (PersonalChatData) TableName() string { return "personal_chat_data" }
func (GroupChatData) TableName() string    { return "group_chat_data" }
