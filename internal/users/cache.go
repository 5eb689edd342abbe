package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisclient "github.com/angelmondragon/yogaflow-backend/pkg/redis"
)

const defaultSessionTTL = 5 * time.Minute

// SessionCache holds short-lived copies of user records for session reads.
type SessionCache interface {
	Get(ctx context.Context, userID string) (*User, bool, error)
	Put(ctx context.Context, user *User) error
	Invalidate(ctx context.Context, userID string) error
}

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	UserSessionKey(userID string) string
}

// RedisSessionCache stores JSON user snapshots in Redis with a TTL.
type RedisSessionCache struct {
	store sessionStore
	ttl   time.Duration
}

// NewRedisSessionCache constructs a Redis-backed session cache.
func NewRedisSessionCache(store sessionStore, ttl time.Duration) (*RedisSessionCache, error) {
	if store == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisSessionCache{store: store, ttl: ttl}, nil
}

func (c *RedisSessionCache) Get(ctx context.Context, userID string) (*User, bool, error) {
	raw, err := c.store.Get(ctx, c.store.UserSessionKey(userID))
	if redisclient.IsMiss(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read session cache: %w", err)
	}
	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		// a corrupt entry is treated as a miss and overwritten on the next Put
		return nil, false, nil
	}
	return &user, true, nil
}

func (c *RedisSessionCache) Put(ctx context.Context, user *User) error {
	if user == nil || user.ID == "" {
		return nil
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode session cache: %w", err)
	}
	return c.store.Set(ctx, c.store.UserSessionKey(user.ID), string(raw), c.ttl)
}

func (c *RedisSessionCache) Invalidate(ctx context.Context, userID string) error {
	return c.store.Del(ctx, c.store.UserSessionKey(userID))
}

// NoopSessionCache never caches.
type NoopSessionCache struct{}

func (NoopSessionCache) Get(context.Context, string) (*User, bool, error) { return nil, false, nil }
func (NoopSessionCache) Put(context.Context, *User) error                 { return nil }
func (NoopSessionCache) Invalidate(context.Context, string) error         { return nil }
