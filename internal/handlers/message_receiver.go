package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/thereayou/huntart-chat/internal/errs"
	"github.com/thereayou/huntart-chat/internal/handlers/dto"
	"github.com/thereayou/huntart-chat/internal/services"
	ws "github.com/thereayou/huntart-chat/internal/websocket"
)

const ActionNewMessage = "new_message"

const (
	chatGroupPrefix = "chat_pk_"
	userGroupPrefix = "user_pk_"
)

// ChatGroup: имя группы реестра для чата
func ChatGroup(chatID uint) string {
	return fmt.Sprintf("%s%d", chatGroupPrefix, chatID)
}

// UserGroup объединяет все соединения одного пользователя
func UserGroup(userID uint) string {
	return fmt.Sprintf("%s%d", userGroupPrefix, userID)
}

// MessageReceiver принимает сообщение из сокета, сохраняет его
// и рассылает всем подключённым участникам чата
type MessageReceiver struct {
	store    services.ChatStore
	registry *ws.Registry
	validate *validator.Validate
	logger   *slog.Logger
}

func NewMessageReceiver(store services.ChatStore, registry *ws.Registry, logger *slog.Logger) *MessageReceiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageReceiver{
		store:    store,
		registry: registry,
		validate: validator.New(),
		logger:   logger,
	}
}

func (r *MessageReceiver) Receive(ctx context.Context, session *ws.Session, data json.RawMessage) error {
	userID, ok := session.UserID()
	if !ok {
		return errs.Auth(nil, "authentication required")
	}

	var payload dto.ReceiveMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errs.Protocol("malformed message payload")
	}
	payload.Content = strings.TrimSpace(payload.Content)
	if err := r.validate.Struct(payload); err != nil {
		return validationError(err)
	}

	if _, err := r.store.GetMember(ctx, payload.ChatID, userID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return notMember(payload.ChatID)
		}
		return err
	}

	return r.registry.Publish(ctx, ChatGroup(payload.ChatID), func() (*ws.Envelope, error) {
		msg, err := r.store.CreateMessage(ctx, payload.ChatID, userID, payload.Content)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("message stored", "chat_id", msg.ChatID, "message_id", msg.ID, "sender_id", userID)
		return ws.NewEnvelope(string(ChatSubsystemName), ActionNewMessage, dto.NewMessageResponse(msg))
	})
}

// validationError собирает ошибки валидатора в одну ProtocolError
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errs.Protocol("invalid payload")
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", field))
		}
	}
	return errs.Protocol("%s", strings.Join(parts, "; "))
}
