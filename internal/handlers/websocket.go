package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/thereayou/huntart-chat/internal/services"
	ws "github.com/thereayou/huntart-chat/internal/websocket"
	"github.com/thereayou/huntart-chat/pkg/auth"
)

// WebSocketHandler управляет WebSocket соединениями
type WebSocketHandler struct {
	registry  *ws.Registry
	catalog   *ws.Catalog
	validator services.TokenValidator
	opts      ws.Options
	upgrader  websocket.Upgrader
	logger    *slog.Logger

	// активные сессии, чтобы закрыть их при остановке сервера
	sessions sync.Map
}

// NewWebSocketHandler создает новый WebSocket handler.
// Пустой allowedOrigins пропускает любой Origin.
func NewWebSocketHandler(registry *ws.Registry, catalog *ws.Catalog, validator services.TokenValidator, opts ws.Options, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		registry:  registry,
		catalog:   catalog,
		validator: validator,
		opts:      opts,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// HandleWebSocket обслуживает соединение до его закрытия.
// Токен необязателен: его можно передать позже в headers.jwt_access любого конверта.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = auth.ExtractTokenFromHeader(c.Request)
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())

	session := ws.NewSession(conn, h.opts, h.logger)
	dispatcher := ws.NewDispatcher(session, h.registry, h.catalog, h.validator, h.logger)

	h.sessions.Store(session.ID, session)
	defer func() {
		dispatcher.Close(ctx)
		h.sessions.Delete(session.ID)
	}()

	go session.WritePump()

	dispatcher.Start(ctx, token)
	session.ReadPump(ctx, dispatcher.HandleFrame)
}

// CloseAll закрывает все активные соединения.
// http.Server.Shutdown не трогает захваченные соединения, поэтому это делается отдельно.
func (h *WebSocketHandler) CloseAll() {
	h.sessions.Range(func(_, v any) bool {
		v.(*ws.Session).Close()
		return true
	})
}
