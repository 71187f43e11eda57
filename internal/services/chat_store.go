package services

import (
	"context"
	"time"

	"github.com/thereayou/huntart-chat/internal/models"
)

// ChatStore: всё, что real-time ядро берёт из базы.
// Реализуется *database.Database.
type ChatStore interface {
	CreateMessage(ctx context.Context, chatID, senderID uint, content string) (*models.ChatMessage, error)
	ListMemberships(ctx context.Context, userID uint) ([]uint, error)
	// GetMember возвращает errs.ErrNotFound, если пользователь не участник чата
	GetMember(ctx context.Context, chatID, userID uint) (*models.ChatMember, error)
	UpdateReadBefore(ctx context.Context, member *models.ChatMember, ts time.Time) (bool, error)
	// LatestMessage возвращает errs.ErrNotFound для пустого чата
	LatestMessage(ctx context.Context, chatID uint) (*models.ChatMessage, error)
}
