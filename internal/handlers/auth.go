package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/huntart-chat/internal/database"
	"github.com/thereayou/huntart-chat/internal/handlers/dto"
	"github.com/thereayou/huntart-chat/internal/services"
	"github.com/thereayou/huntart-chat/pkg/auth"
)

type AuthHandler struct {
	db       *database.Database
	accounts *services.AccountService
	logger   *slog.Logger
}

func NewAuthHandler(db *database.Database, accounts *services.AccountService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{db: db, accounts: accounts, logger: logger}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), req.Username, req.Password, req.AvatarURL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewUserResponse(user))
}

// Login выдаёт access-токен и обновляет last_seen
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, token, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.db.UpdateLastSeen(c.Request.Context(), user.ID); err != nil {
		h.logger.Warn("could not update last seen", "user_id", user.ID, "error", err)
	}

	c.JSON(http.StatusOK, dto.TokenResponse{Access: token})
}

// Logout ставит токен в черный список в Redis до истечения
func (h *AuthHandler) Logout(c *gin.Context) {
	rawToken, err := auth.ExtractTokenFromHeader(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.accounts.Logout(c.Request.Context(), rawToken); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusOK)
}
