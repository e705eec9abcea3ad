package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"truefantix/internal/config"
	"truefantix/internal/models"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient подключается к Redis; пустой адрес означает "Redis не используется"
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return rdb, nil
}

// SessionCache - кэш строк sessions по хэшу токена
type SessionCache interface {
	Get(ctx context.Context, tokenHash string) (*models.Session, error)
	Set(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, tokenHash string) error
}

const (
	sessionKeyPrefix = "session:"
	maxSessionTTL    = 10 * time.Minute
)

type RedisSessionCache struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisSessionCache(client redis.Cmdable) *RedisSessionCache {
	return &RedisSessionCache{client: client, now: time.Now}
}

func (c *RedisSessionCache) Get(ctx context.Context, tokenHash string) (*models.Session, error) {
	data, err := c.client.Get(ctx, sessionKeyPrefix+tokenHash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache lookup error: %w", err)
	}

	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid session in cache: %w", err)
	}
	s.TokenHash = tokenHash
	return &s, nil
}

// Set кладет сессию не дольше maxSessionTTL и не дольше ее срока жизни
func (c *RedisSessionCache) Set(ctx context.Context, s *models.Session) error {
	ttl := min(s.ExpiresAt.Sub(c.now()), maxSessionTTL)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return c.client.Set(ctx, sessionKeyPrefix+s.TokenHash, data, ttl).Err()
}

func (c *RedisSessionCache) Delete(ctx context.Context, tokenHash string) error {
	return c.client.Del(ctx, sessionKeyPrefix+tokenHash).Err()
}

// NopSessionCache используется без Redis
type NopSessionCache struct{}

func (NopSessionCache) Get(context.Context, string) (*models.Session, error) { return nil, nil }
func (NopSessionCache) Set(context.Context, *models.Session) error           { return nil }
func (NopSessionCache) Delete(context.Context, string) error                 { return nil }
