package handlers

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/thereayou/huntart-chat/internal/errs"
	"github.com/thereayou/huntart-chat/internal/services"
	ws "github.com/thereayou/huntart-chat/internal/websocket"
)

const (
	ChatSubsystemName ws.SubsystemName = "chat"

	ActionReceiveMessage = "receive_message"
)

// ChatSubsystem: подсистема "chat" одного соединения.
// При подключении подписывает сессию на группу пользователя и на группы
// всех его чатов. Чаты, созданные позже, добавляет JoinLiveSessions.
type ChatSubsystem struct {
	session     *ws.Session
	registry    *ws.Registry
	memberships *services.MembershipLoader
	receiver    *MessageReceiver
	logger      *slog.Logger

	// mu сериализует подключение, смену пользователя и отключение
	mu sync.Mutex
}

// NewChatSubsystemEntry регистрирует подсистему в каталоге
func NewChatSubsystemEntry(memberships *services.MembershipLoader, receiver *MessageReceiver) ws.CatalogEntry {
	return ws.CatalogEntry{
		Name: ChatSubsystemName,
		New: func(d *ws.Dispatcher) ws.Subsystem {
			return &ChatSubsystem{
				session:     d.Session(),
				registry:    d.Registry(),
				memberships: memberships,
				receiver:    receiver,
				logger:      d.Logger().With("subsystem", string(ChatSubsystemName)),
			}
		},
	}
}

func (c *ChatSubsystem) Name() ws.SubsystemName {
	return ChatSubsystemName
}

// ReconnectOnAuth: после смены пользователя нужны группы уже нового пользователя
func (c *ChatSubsystem) ReconnectOnAuth() bool {
	return true
}

func (c *ChatSubsystem) HandleConnect(ctx context.Context) error {
	userID, ok := c.session.UserID()
	if !ok {
		return nil
	}

	groups, err := c.groupsOf(ctx, userID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, group := range groups {
		c.registry.Subscribe(group, c.session)
	}
	c.logger.Debug("joined chat groups", "user_id", userID, "count", len(groups)-1)

	return nil
}

func (c *ChatSubsystem) HandleDisconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, group := range c.ownGroups() {
		c.registry.Unsubscribe(group, c.session)
	}

	return nil
}

// SwitchUser переводит сессию на чаты userID: подписка на новые группы,
// затем отписка от групп, которых у нового пользователя нет
func (c *ChatSubsystem) SwitchUser(ctx context.Context, userID uint) error {
	groups, err := c.groupsOf(ctx, userID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	keep := make(map[string]struct{}, len(groups))
	for _, group := range groups {
		c.registry.Subscribe(group, c.session)
		keep[group] = struct{}{}
	}
	for _, group := range c.ownGroups() {
		if _, ok := keep[group]; !ok {
			c.registry.Unsubscribe(group, c.session)
		}
	}
	c.logger.Debug("switched chat groups", "user_id", userID, "count", len(groups)-1)

	return nil
}

// groupsOf: группа пользователя и группы всех его чатов
func (c *ChatSubsystem) groupsOf(ctx context.Context, userID uint) ([]string, error) {
	chatIDs, err := c.memberships.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	groups := make([]string, 0, len(chatIDs)+1)
	groups = append(groups, UserGroup(userID))
	for _, id := range chatIDs {
		groups = append(groups, ChatGroup(id))
	}
	return groups, nil
}

// ownGroups: группы сессии, которыми управляет эта подсистема
func (c *ChatSubsystem) ownGroups() []string {
	var out []string
	for _, group := range c.session.Groups() {
		if strings.HasPrefix(group, chatGroupPrefix) || strings.HasPrefix(group, userGroupPrefix) {
			out = append(out, group)
		}
	}
	return out
}

// JoinLiveSessions подписывает уже открытые соединения пользователей на группу
// нового чата, чтобы первые сообщения дошли без переподключения
func JoinLiveSessions(registry *ws.Registry, chatID uint, userIDs ...uint) {
	group := ChatGroup(chatID)
	for _, userID := range userIDs {
		for _, s := range registry.Sessions(UserGroup(userID)) {
			if id, ok := s.UserID(); ok && id == userID {
				registry.Subscribe(group, s)
			}
		}
	}
}

func (c *ChatSubsystem) ReceiveMessage(ctx context.Context, env *ws.Envelope) error {
	switch env.Action {
	case "", ActionReceiveMessage:
		return c.receiver.Receive(ctx, c.session, env.Data)
	default:
		return errs.Protocol("unknown chat action %q", env.Action)
	}
}

// Deliver пересылает новые сообщения группы в свой сокет
func (c *ChatSubsystem) Deliver(env *ws.Envelope) {
	switch env.Action {
	case ActionNewMessage:
		_ = c.session.Send(env)
	default:
		c.logger.Debug("dropping unknown chat delivery", "action", env.Action)
	}
}
