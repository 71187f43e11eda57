package database

import (
	"context"
	"time"

	"github.com/thereayou/huntart-chat/internal/errs"
	"github.com/thereayou/huntart-chat/internal/models"
)

// CreateMessage сохраняет сообщение; created_at выставляется здесь,
// в том же виде, в каком он хранится в базе.
func (d *Database) CreateMessage(ctx context.Context, chatID, senderID uint, content string) (*models.ChatMessage, error) {
	message := &models.ChatMessage{
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: models.Timestamp(time.Now()),
	}
	if err := d.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, errs.Transient(err, "failed to save message")
	}
	return message, nil
}

// LatestMessage возвращает последнее сообщение чата или NotFound, если чат пуст
func (d *Database) LatestMessage(ctx context.Context, chatID uint) (*models.ChatMessage, error) {
	var message models.ChatMessage
	err := d.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Order("id DESC").
		First(&message).Error
	if err != nil {
		return nil, lookupError(err, "latest message of chat %d", chatID)
	}
	return &message, nil
}

// ListChatMessages получает сообщения чата с пагинацией, новые первыми
func (d *Database) ListChatMessages(ctx context.Context, chatID uint, limit, offset int) ([]models.ChatMessage, int64, error) {
	var total int64
	if err := d.db.WithContext(ctx).Model(&models.ChatMessage{}).Where("chat_id = ?", chatID).Count(&total).Error; err != nil {
		return nil, 0, errs.Transient(err, "failed to count messages")
	}

	var messages []models.ChatMessage
	err := d.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Preload("Sender").
		Find(&messages).Error
	if err != nil {
		return nil, 0, errs.Transient(err, "failed to load messages")
	}

	return messages, total, nil
}

// CountUnread считает чужие сообщения новее readBefore
func (d *Database) CountUnread(ctx context.Context, chatID, userID uint, readBefore *time.Time) (int64, error) {
	query := d.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("chat_id = ? AND sender_id <> ?", chatID, userID)
	if readBefore != nil {
		query = query.Where("created_at > ?", *readBefore)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, errs.Transient(err, "failed to count unread messages")
	}
	return count, nil
}
