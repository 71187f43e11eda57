package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/huntart-chat/internal/errs"
	"github.com/thereayou/huntart-chat/internal/services"
	"github.com/thereayou/huntart-chat/pkg/auth"
)

const UserIDKey = "userID"

// AuthMiddleware проверяет Bearer-токен и кладёт id пользователя в контекст
func AuthMiddleware(validator services.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			c.Abort()
			return
		}

		userID, err := validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(errs.HTTPStatus(err), gin.H{"error": errs.PublicMessage(err)})
			c.Abort()
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// CurrentUserID возвращает id пользователя, выставленный AuthMiddleware
func CurrentUserID(c *gin.Context) uint {
	return c.MustGet(UserIDKey).(uint)
}
