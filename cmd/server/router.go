package server

import (
	"github.com/gin-gonic/gin"
	"github.com/thereayou/huntart-chat/internal/handlers"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	User      *handlers.UserHandler
	Chat      *handlers.ChatHandler
	WebSocket *handlers.WebSocketHandler
}

func APIEndpoints(r *gin.Engine, h Handlers, authMW gin.HandlerFunc) {
	// Auth endpoints
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/logout", authMW, h.Auth.Logout)
	}

	users := r.Group("/users", authMW)
	{
		users.GET("/me", h.User.GetMe)
		users.GET("/:id", h.User.GetUser)
		users.POST("/:id/read-all-messages", h.Chat.ReadAllUserMessages)
	}

	chats := r.Group("/chats", authMW)
	{
		chats.GET("/", h.Chat.ListChats)
		chats.POST("/personal", h.Chat.CreatePersonalChat)
		chats.POST("/group", h.Chat.CreateGroupChat)
		chats.GET("/:id/messages/", h.Chat.ListMessages)
		chats.POST("/:id/read-all-messages", h.Chat.ReadAllMessages)
	}

	// токен необязателен, соединение аутентифицируется само
	r.GET("/ws", h.WebSocket.HandleWebSocket)
}
