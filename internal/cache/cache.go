// Package cache хранит в Redis реестр сессий (текущие access/refresh токены
// пользователя) и чёрный список отозванных токенов.
package cache

//go:generate mockgen -source=cache.go -destination=../../mocks/mock_cache.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/tweeter-auth/internal/models"
)

// DefaultBlacklistTTL применяется, когда срок записи в чёрном списке не задан.
const DefaultBlacklistTTL = time.Hour

// SessionRegistry — не более одной живой пары токенов на пользователя.
type SessionRegistry interface {
	// Store перезаписывает текущий токен вида kind с TTL.
	Store(ctx context.Context, userID uuid.UUID, kind models.TokenKind, token string, ttl time.Duration) error
	// Get возвращает текущий токен вида kind и признак его наличия.
	Get(ctx context.Context, userID uuid.UUID, kind models.TokenKind) (string, bool, error)
	// RevokeAll удаляет обе записи пользователя.
	RevokeAll(ctx context.Context, userID uuid.UUID) error
}

// Blacklist — множество отозванных токенов с автоматическим истечением.
type Blacklist interface {
	// Blacklist добавляет токен на ttl (ttl <= 0 — DefaultBlacklistTTL).
	Blacklist(ctx context.Context, token string, ttl time.Duration) error
	// IsBlacklisted сообщает, отозван ли токен.
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// NewRedisClient создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	const op = "cache.cache.NewRedisClient"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rdb, nil
}

// Redis реализует SessionRegistry и Blacklist поверх одного клиента.
type Redis struct {
	rdb    redis.Cmdable
	prefix string
}

var (
	_ SessionRegistry = (*Redis)(nil)
	_ Blacklist       = (*Redis)(nil)
)

// NewRedis оборачивает клиент. prefix добавляется ко всем ключам (может быть пустым).
func NewRedis(rdb redis.Cmdable, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) sessionKey(userID uuid.UUID, kind models.TokenKind) string {
	return r.prefix + string(kind) + "Token:" + userID.String()
}

func (r *Redis) blacklistKey(token string) string {
	return r.prefix + "blacklist:" + token
}

func (r *Redis) Store(ctx context.Context, userID uuid.UUID, kind models.TokenKind, token string, ttl time.Duration) error {
	const op = "cache.cache.Store"

	if ttl <= 0 {
		return fmt.Errorf("%s: non-positive ttl %s", op, ttl)
	}

	if err := r.rdb.Set(ctx, r.sessionKey(userID, kind), token, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *Redis) Get(ctx context.Context, userID uuid.UUID, kind models.TokenKind) (string, bool, error) {
	const op = "cache.cache.Get"

	v, err := r.rdb.Get(ctx, r.sessionKey(userID, kind)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	return v, true, nil
}

func (r *Redis) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	const op = "cache.cache.RevokeAll"

	err := r.rdb.Del(ctx,
		r.sessionKey(userID, models.TokenAccess),
		r.sessionKey(userID, models.TokenRefresh),
	).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *Redis) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	const op = "cache.cache.Blacklist"

	if ttl <= 0 {
		ttl = DefaultBlacklistTTL
	}

	if err := r.rdb.Set(ctx, r.blacklistKey(token), "true", ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *Redis) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	const op = "cache.cache.IsBlacklisted"

	n, err := r.rdb.Exists(ctx, r.blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}
