package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/thereayou/huntart-chat/internal/config"
	"github.com/thereayou/huntart-chat/internal/database"
	"github.com/thereayou/huntart-chat/internal/handlers"
	"github.com/thereayou/huntart-chat/internal/middleware"
	"github.com/thereayou/huntart-chat/internal/services"
	ws "github.com/thereayou/huntart-chat/internal/websocket"
	"github.com/thereayou/huntart-chat/pkg/auth"
)

type Server struct {
	Router     *gin.Engine
	HTTP       *http.Server
	DB         *database.Database
	Redis      *redis.Client
	JWTManager *auth.JWTManager
	Registry   *ws.Registry

	logger *slog.Logger
}

// NewServer подключается к базе и Redis и собирает приложение
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database connect failed: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}

	s, err := Assemble(cfg, db, services.NewRedisBlacklist(rdb), logger)
	if err != nil {
		return nil, err
	}
	s.Redis = rdb

	return s, nil
}

// Assemble собирает сервисы, подсистемы и роутер поверх готовых хранилищ
func Assemble(cfg *config.Config, db *database.Database, blacklist services.Blacklist, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	jwtMgr := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Duration)
	tokens := services.NewTokenAuthenticator(jwtMgr, blacklist)
	accounts := services.NewAccountService(db, jwtMgr, tokens)
	tracker := services.NewReadTracker(db, logger)
	memberships := services.NewMembershipLoader(db)

	registry := ws.NewRegistry(logger)
	receiver := handlers.NewMessageReceiver(db, registry, logger)

	catalog, err := ws.NewCatalog(
		handlers.NewChatSubsystemEntry(memberships, receiver),
	)
	if err != nil {
		return nil, err
	}

	wsOpts := ws.Options{
		SendQueueSize:  cfg.WebSocket.SendQueueSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
	}

	h := Handlers{
		Auth:      handlers.NewAuthHandler(db, accounts, logger),
		User:      handlers.NewUserHandler(db),
		Chat:      handlers.NewChatHandler(db, tracker, registry),
		WebSocket: handlers.NewWebSocketHandler(registry, catalog, tokens, wsOpts, cfg.WebSocket.AllowedOrigins, logger),
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger))
	APIEndpoints(router, h, middleware.AuthMiddleware(tokens))

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	httpSrv.RegisterOnShutdown(h.WebSocket.CloseAll)

	return &Server{
		Router:     router,
		HTTP:       httpSrv,
		DB:         db,
		JWTManager: jwtMgr,
		Registry:   registry,
		logger:     logger,
	}, nil
}

// Run блокируется до остановки сервера
func (s *Server) Run() error {
	s.logger.Info("server starting", "addr", s.HTTP.Addr)
	if err := s.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown перестаёт принимать запросы и закрывает соединения с хранилищами
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTP.Shutdown(ctx)

	if s.Redis != nil {
		err = errors.Join(err, s.Redis.Close())
	}
	if s.DB != nil {
		err = errors.Join(err, s.DB.Close())
	}

	s.logger.Info("server stopped")
	return err
}
