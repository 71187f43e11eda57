package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/huntart-chat/internal/database"
	"github.com/thereayou/huntart-chat/internal/errs"
	"github.com/thereayou/huntart-chat/internal/handlers/dto"
	"github.com/thereayou/huntart-chat/internal/middleware"
	"github.com/thereayou/huntart-chat/internal/models"
	"github.com/thereayou/huntart-chat/internal/services"
	ws "github.com/thereayou/huntart-chat/internal/websocket"
)

const (
	chatsPageSize       = 20
	chatsMaxPageSize    = 50
	messagesPageSize    = 50
	messagesMaxPageSize = 200
)

type ChatHandler struct {
	db       *database.Database
	tracker  *services.ReadTracker
	registry *ws.Registry
}

func NewChatHandler(db *database.Database, tracker *services.ReadTracker, registry *ws.Registry) *ChatHandler {
	return &ChatHandler{db: db, tracker: tracker, registry: registry}
}

// ListChats возвращает чаты текущего пользователя с пагинацией
func (h *ChatHandler) ListChats(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.CurrentUserID(c)

	p, err := parsePagination(c, chatsPageSize, chatsMaxPageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	chats, total, err := h.db.ListUserChats(ctx, userID, p.limit(), p.offset())
	if err != nil {
		respondError(c, err)
		return
	}

	results := make([]dto.ShortChatResponse, 0, len(chats))
	for i := range chats {
		item := h.shortChat(&chats[i], userID)

		readBefore := memberReadBefore(&chats[i], userID)
		unread, err := h.db.CountUnread(ctx, chats[i].ID, userID, readBefore)
		if err != nil {
			respondError(c, err)
			return
		}
		item.UnreadCount = unread

		results = append(results, item)
	}

	c.JSON(http.StatusOK, newPage(c, p, total, results))
}

// CreatePersonalChat возвращает личный чат с пользователем, создавая его при необходимости
func (h *ChatHandler) CreatePersonalChat(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.CurrentUserID(c)

	var req dto.CreatePersonalChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.db.GetUser(ctx, req.UserID); err != nil {
		respondError(c, err)
		return
	}

	chat, created, err := h.db.GetOrCreatePersonalChat(ctx, userID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		JoinLiveSessions(h.registry, chat.ID, userID, req.UserID)
	}
	c.JSON(status, chatResponse(chat, userID))
}

// CreateGroupChat создаёт групповой чат, создатель входит в него автоматически
func (h *ChatHandler) CreateGroupChat(c *gin.Context) {
	userID := middleware.CurrentUserID(c)

	var req dto.CreateGroupChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, err := h.db.CreateGroupChat(c.Request.Context(), req.Name, req.Avatar, userID, req.MemberIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	JoinLiveSessions(h.registry, chat.ID, memberIDs(chat)...)

	c.JSON(http.StatusCreated, chatResponse(chat, userID))
}

// ListMessages получает историю чата, новые сообщения первыми
func (h *ChatHandler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.CurrentUserID(c)

	chatID, err := parseID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	if _, err := h.db.GetMember(ctx, chatID, userID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			err = notMember(chatID)
		}
		respondError(c, err)
		return
	}

	p, err := parsePagination(c, messagesPageSize, messagesMaxPageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	messages, total, err := h.db.ListChatMessages(ctx, chatID, p.limit(), p.offset())
	if err != nil {
		respondError(c, err)
		return
	}

	results := make([]dto.MessageResponse, 0, len(messages))
	for i := range messages {
		results = append(results, dto.NewMessageResponse(&messages[i]))
	}

	c.JSON(http.StatusOK, newPage(c, p, total, results))
}

// ReadAllMessages отмечает прочитанными все сообщения чата
func (h *ChatHandler) ReadAllMessages(c *gin.Context) {
	chatID, err := parseID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.tracker.MarkAllRead(c.Request.Context(), chatID, middleware.CurrentUserID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

// ReadAllUserMessages отмечает прочитанным личный чат с пользователем :id
func (h *ChatHandler) ReadAllUserMessages(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.CurrentUserID(c)

	otherID, err := parseID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	chat, err := h.db.FindPersonalChat(ctx, userID, otherID)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.tracker.MarkAllRead(ctx, chat.ID, userID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

func (h *ChatHandler) shortChat(chat *models.Chat, userID uint) dto.ShortChatResponse {
	item := dto.ShortChatResponse{
		ID:          chat.ID,
		Type:        chat.Type,
		OnlineCount: h.registry.OnlineUsers(ChatGroup(chat.ID)),
	}
	item.Name, item.Avatar, item.UserID = chatTitle(chat, userID)
	return item
}

// chatTitle: для личного чата имя, аватар и id собеседника,
// для группы её название и аватар
func chatTitle(chat *models.Chat, userID uint) (name, avatar string, otherID *uint) {
	if chat.Type == models.ChatTypeGroup {
		if chat.GroupData != nil {
			return chat.GroupData.Name, chat.GroupData.Avatar, nil
		}
		return "", "", nil
	}
	for _, m := range chat.Members {
		if m.UserID != userID {
			id := m.UserID
			return m.User.Username, m.User.AvatarURL, &id
		}
	}
	return "", "", nil
}

func memberReadBefore(chat *models.Chat, userID uint) *time.Time {
	for _, m := range chat.Members {
		if m.UserID == userID {
			return m.ReadBefore
		}
	}
	return nil
}

func memberIDs(chat *models.Chat) []uint {
	ids := make([]uint, 0, len(chat.Members))
	for _, m := range chat.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

func chatResponse(chat *models.Chat, userID uint) dto.ChatResponse {
	resp := dto.ChatResponse{ID: chat.ID, Type: chat.Type, MemberIDs: memberIDs(chat)}
	resp.Name, resp.Avatar, _ = chatTitle(chat, userID)
	return resp
}
