package services

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/thereayou/huntart-chat/internal/errs"
	"github.com/thereayou/huntart-chat/pkg/auth"
)

// TokenValidator превращает токен в id пользователя
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uint, error)
}

// Blacklist хранит отозванные токены до истечения их срока
type Blacklist interface {
	Contains(ctx context.Context, token string) (bool, error)
	Add(ctx context.Context, token string, ttl time.Duration) error
}

type RedisBlacklist struct {
	client *redis.Client
}

func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

func blacklistKey(token string) string {
	return "blacklist:" + token
}

func (b *RedisBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *RedisBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.client.Set(ctx, blacklistKey(token), "true", ttl).Err()
}

type TokenAuthenticator struct {
	jwt       *auth.JWTManager
	blacklist Blacklist
}

func NewTokenAuthenticator(jwtManager *auth.JWTManager, blacklist Blacklist) *TokenAuthenticator {
	return &TokenAuthenticator{jwt: jwtManager, blacklist: blacklist}
}

func (a *TokenAuthenticator) ValidateToken(ctx context.Context, token string) (uint, error) {
	if token == "" {
		return 0, errs.Auth(nil, "missing token")
	}

	claims, err := a.jwt.Verify(token)
	if err != nil {
		return 0, errs.Auth(err, "invalid token")
	}

	if a.blacklist != nil {
		revoked, err := a.blacklist.Contains(ctx, token)
		if err != nil {
			return 0, errs.Transient(err, "failed to check token")
		}
		if revoked {
			return 0, errs.Auth(nil, "token is blacklisted")
		}
	}

	userID, err := auth.UserID(claims)
	if err != nil {
		return 0, errs.Auth(err, "invalid user id")
	}
	return userID, nil
}

// Revoke кладёт токен в чёрный список до момента его истечения
func (a *TokenAuthenticator) Revoke(ctx context.Context, token string) error {
	if a.blacklist == nil {
		return errors.New("token blacklist is not configured")
	}
	claims, err := a.jwt.Verify(token)
	if err != nil {
		return errs.Auth(err, "invalid token")
	}
	if err := a.blacklist.Add(ctx, token, time.Until(claims.ExpiresAt.Time)); err != nil {
		return errs.Transient(err, "failed to revoke token")
	}
	return nil
}
