package database

import (
	"context"
	"time"

	"github.com/thereayou/huntart-chat/internal/errs"
	"github.com/thereayou/huntart-chat/internal/models"
)

func (d *Database) GetMember(ctx context.Context, chatID, userID uint) (*models.ChatMember, error) {
	var member models.ChatMember
	err := d.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		First(&member).Error
	if err != nil {
		return nil, lookupError(err, "member (chat %d, user %d)", chatID, userID)
	}
	return &member, nil
}

// ListMemberships возвращает id всех чатов пользователя
func (d *Database) ListMemberships(ctx context.Context, userID uint) ([]uint, error) {
	var chatIDs []uint
	err := d.db.WithContext(ctx).
		Model(&models.ChatMember{}).
		Where("user_id = ?", userID).
		Order("chat_id").
		Pluck("chat_id", &chatIDs).Error
	if err != nil {
		return nil, errs.Transient(err, "failed to load memberships of user %d", userID)
	}
	return chatIDs, nil
}

// UpdateReadBefore сдвигает read_before участника вперёд одним условным UPDATE.
// Если в базе уже стоит значение не меньше ts, ничего не меняется и
// возвращается false; member при этом перечитывается.
func (d *Database) UpdateReadBefore(ctx context.Context, member *models.ChatMember, ts time.Time) (bool, error) {
	ts = models.Timestamp(ts)

	res := d.db.WithContext(ctx).
		Model(&models.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", member.ChatID, member.UserID).
		Where("(read_before IS NULL OR read_before < ?)", ts).
		Update("read_before", ts)
	if res.Error != nil {
		return false, errs.Transient(res.Error, "failed to update read marker")
	}

	if res.RowsAffected == 0 {
		current, err := d.GetMember(ctx, member.ChatID, member.UserID)
		if err != nil {
			return false, err
		}
		member.ReadBefore = current.ReadBefore
		return false, nil
	}

	member.ReadBefore = &ts
	return true, nil
}
