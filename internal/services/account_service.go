package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/thereayou/huntart-chat/internal/errs"
	"github.com/thereayou/huntart-chat/internal/models"
	"github.com/thereayou/huntart-chat/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// AccountService выдаёт и отзывает токены, которыми потом
// аутентифицируются WebSocket-соединения
type AccountService struct {
	users  UserStore
	jwt    *auth.JWTManager
	tokens *TokenAuthenticator
}

func NewAccountService(users UserStore, jwtManager *auth.JWTManager, tokens *TokenAuthenticator) *AccountService {
	return &AccountService{users: users, jwt: jwtManager, tokens: tokens}
}

func (s *AccountService) Register(ctx context.Context, username, password, avatarURL string) (*models.User, error) {
	username = strings.TrimSpace(username)

	_, err := s.users.FindUserByUsername(ctx, username)
	if err == nil {
		return nil, errs.Protocol("username %q is already taken", username)
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		AvatarURL:    avatarURL,
		CreatedAt:    models.Timestamp(time.Now()),
		LastSeenAt:   models.Timestamp(time.Now()),
	}
	if err := s.users.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login проверяет пароль и возвращает пользователя с access-токеном
func (s *AccountService) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	user, err := s.users.FindUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, errs.ErrNotFound) {
		return nil, "", errs.Auth(nil, "invalid credentials")
	}
	if err != nil {
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", errs.Auth(nil, "invalid credentials")
	}

	token, err := s.jwt.Generate(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *AccountService) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}
