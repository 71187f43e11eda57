package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/thereayou/huntart-chat/internal/errs"
	"github.com/thereayou/huntart-chat/internal/models"
)

// ReadTracker двигает отметку прочтения участника только вперёд
type ReadTracker struct {
	store  ChatStore
	logger *slog.Logger
}

func NewReadTracker(store ChatStore, logger *slog.Logger) *ReadTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadTracker{store: store, logger: logger}
}

// MarkRead выставляет read_before = max(read_before, ts).
// Сравнение и запись делает сама база одним условным UPDATE.
func (t *ReadTracker) MarkRead(ctx context.Context, member *models.ChatMember, ts time.Time) error {
	advanced, err := t.store.UpdateReadBefore(ctx, member, ts)
	if err != nil {
		return err
	}
	if advanced {
		t.logger.Debug("read marker advanced",
			"chat_id", member.ChatID, "user_id", member.UserID, "read_before", ts)
	}
	return nil
}

// MarkAllRead отмечает прочитанными все сообщения чата на текущий момент.
// Пустой чат ничего не меняет; не участник получает NotFound.
func (t *ReadTracker) MarkAllRead(ctx context.Context, chatID, userID uint) error {
	member, err := t.store.GetMember(ctx, chatID, userID)
	if err != nil {
		return err
	}

	latest, err := t.store.LatestMessage(ctx, chatID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return t.MarkRead(ctx, member, latest.CreatedAt)
}
