package dto

import (
	"time"

	"github.com/thereayou/huntart-chat/internal/models"
)

// ReceiveMessagePayload: поле data входящего конверта чата
type ReceiveMessagePayload struct {
	ChatID  uint   `json:"chat_id" validate:"required,gt=0"`
	Content string `json:"content" validate:"required,max=4096"`
}

// MessageResponse: сообщение в рассылке new_message и в истории
type MessageResponse struct {
	ID        uint      `json:"id"`
	Chat      uint      `json:"chat"`
	Sender    uint      `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func NewMessageResponse(m *models.ChatMessage) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		Chat:      m.ChatID,
		Sender:    m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
