package database

import (
	"context"
	"errors"
	"time"

	"github.com/thereayou/huntart-chat/internal/errs"
	"github.com/thereayou/huntart-chat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (d *Database) GetChat(ctx context.Context, id uint) (*models.Chat, error) {
	var chat models.Chat
	err := d.db.WithContext(ctx).
		Preload("Members.User").
		Preload("PersonalData").
		Preload("GroupData").
		First(&chat, "id = ?", id).Error
	if err != nil {
		return nil, lookupError(err, "chat %d", id)
	}
	return &chat, nil
}

// ListUserChats получает чаты пользователя с пагинацией, новые первыми
func (d *Database) ListUserChats(ctx context.Context, userID uint, limit, offset int) ([]models.Chat, int64, error) {
	memberOf := func() *gorm.DB {
		return d.db.WithContext(ctx).
			Model(&models.Chat{}).
			Joins("JOIN chat_members ON chat_members.chat_id = chats.id AND chat_members.user_id = ?", userID)
	}

	var total int64
	if err := memberOf().Count(&total).Error; err != nil {
		return nil, 0, errs.Transient(err, "failed to count chats")
	}

	var chats []models.Chat
	err := memberOf().
		Preload("Members.User").
		Preload("PersonalData").
		Preload("GroupData").
		Order("chats.id DESC").
		Limit(limit).
		Offset(offset).
		Find(&chats).Error
	if err != nil {
		return nil, 0, errs.Transient(err, "failed to load chats")
	}

	return chats, total, nil
}

// FindPersonalChat ищет личный чат пары напрямую по упорядоченной паре id
func (d *Database) FindPersonalChat(ctx context.Context, a, b uint) (*models.Chat, error) {
	low, high := models.PersonalPair(a, b)

	var data models.PersonalChatData
	err := d.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		First(&data).Error
	if err != nil {
		return nil, lookupError(err, "personal chat (%d, %d)", low, high)
	}

	return d.GetChat(ctx, data.ChatID)
}

// GetOrCreatePersonalChat возвращает личный чат пары, создавая его при отсутствии.
// Второй флаг сообщает, был ли чат создан этим вызовом.
func (d *Database) GetOrCreatePersonalChat(ctx context.Context, a, b uint) (*models.Chat, bool, error) {
	if a == b {
		return nil, false, errs.Protocol("cannot create a personal chat with yourself")
	}

	chat, err := d.FindPersonalChat(ctx, a, b)
	if err == nil {
		return chat, false, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, false, err
	}

	low, high := models.PersonalPair(a, b)
	now := models.Timestamp(time.Now())

	var chatID uint
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chat := models.Chat{Type: models.ChatTypePersonal, CreatedAt: now}
		if err := tx.Omit(clause.Associations).Create(&chat).Error; err != nil {
			return err
		}
		data := models.PersonalChatData{ChatID: chat.ID, UserLowID: low, UserHighID: high}
		if err := tx.Create(&data).Error; err != nil {
			return err
		}
		members := []models.ChatMember{
			{ChatID: chat.ID, UserID: low, JoinedAt: now},
			{ChatID: chat.ID, UserID: high, JoinedAt: now},
		}
		if err := tx.Omit(clause.Associations).Create(&members).Error; err != nil {
			return err
		}
		chatID = chat.ID
		return nil
	})
	if err != nil {
		// параллельный запрос мог создать чат раньше нас
		if existing, findErr := d.FindPersonalChat(ctx, a, b); findErr == nil {
			return existing, false, nil
		}
		return nil, false, errs.Transient(err, "failed to create personal chat")
	}

	chat, err = d.GetChat(ctx, chatID)
	if err != nil {
		return nil, false, err
	}
	return chat, true, nil
}

// CreateGroupChat создаёт групповой чат; создатель всегда становится участником
func (d *Database) CreateGroupChat(ctx context.Context, name, avatar string, creatorID uint, memberIDs []uint) (*models.Chat, error) {
	now := models.Timestamp(time.Now())

	seen := map[uint]bool{creatorID: true}
	members := []models.ChatMember{{UserID: creatorID, JoinedAt: now}}
	for _, id := range memberIDs {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, models.ChatMember{UserID: id, JoinedAt: now})
	}

	var chatID uint
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var found int64
		ids := make([]uint, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.UserID)
		}
		if err := tx.Model(&models.User{}).Where("id IN ?", ids).Count(&found).Error; err != nil {
			return err
		}
		if int(found) != len(ids) {
			return errs.NotFound("one or more users")
		}

		chat := models.Chat{Type: models.ChatTypeGroup, CreatedAt: now}
		if err := tx.Omit(clause.Associations).Create(&chat).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.GroupChatData{ChatID: chat.ID, Name: name, Avatar: avatar}).Error; err != nil {
			return err
		}
		for i := range members {
			members[i].ChatID = chat.ID
		}
		if err := tx.Omit(clause.Associations).Create(&members).Error; err != nil {
			return err
		}
		chatID = chat.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		return nil, errs.Transient(err, "failed to create group chat")
	}

	return d.GetChat(ctx, chatID)
}
