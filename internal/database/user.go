package database

import (
	"context"
	"time"

	"github.com/thereayou/huntart-chat/internal/errs"
	"github.com/thereayou/huntart-chat/internal/models"
)

func (d *Database) SaveUser(ctx context.Context, user *models.User) error {
	if err := d.db.WithContext(ctx).Create(user).Error; err != nil {
		return errs.Transient(err, "failed to save user")
	}
	return nil
}

func (d *Database) GetUser(ctx context.Context, id uint) (*models.User, error) {
	user := models.User{}
	if err := d.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, lookupError(err, "user %d", id)
	}
	return &user, nil
}

func (d *Database) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := models.User{}
	if err := d.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, lookupError(err, "user %q", username)
	}
	return &user, nil
}

func (d *Database) UpdateLastSeen(ctx context.Context, id uint) error {
	return d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_seen_at", models.Timestamp(time.Now())).Error
}
