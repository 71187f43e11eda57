package dto

import "github.com/thereayou/huntart-chat/internal/models"

type CreatePersonalChatRequest struct {
	UserID uint `json:"user_id" binding:"required,gt=0"`
}

type CreateGroupChatRequest struct {
	Name      string `json:"name" binding:"required,max=100"`
	Avatar    string `json:"avatar" binding:"omitempty,url,max=500"`
	MemberIDs []uint `json:"member_ids"`
}

// ShortChatResponse: элемент списка чатов.
// Для личного чата Name и Avatar берутся у собеседника, UserID его id.
type ShortChatResponse struct {
	ID          uint            `json:"id"`
	Type        models.ChatType `json:"type"`
	Name        string          `json:"name"`
	Avatar      string          `json:"avatar"`
	UserID      *uint           `json:"user_id"`
	UnreadCount int64           `json:"unread_count"`
	OnlineCount int             `json:"online_count"`
}

type ChatResponse struct {
	ID        uint            `json:"id"`
	Type      models.ChatType `json:"type"`
	Name      string          `json:"name"`
	Avatar    string          `json:"avatar"`
	MemberIDs []uint          `json:"member_ids"`
}

// Page: постраничный ответ
type Page[T any] struct {
	Count    int64   `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}
