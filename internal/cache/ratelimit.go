package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter - счетчик фиксированного окна.
// Allow возвращает false и время до сброса окна, если лимит исчерпан.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

const rateKeyPrefix = "rl:"

// RedisRateLimiter - общий для всех инстансов счетчик на INCR + EXPIRE
type RedisRateLimiter struct {
	client redis.Cmdable
}

func NewRedisRateLimiter(client redis.Cmdable) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	k := rateKeyPrefix + key

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return true, 0, fmt.Errorf("failed to increment rate counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, window).Err(); err != nil {
			return true, 0, fmt.Errorf("failed to set rate window: %w", err)
		}
	}
	if count <= int64(limit) {
		return true, 0, nil
	}

	ttl, err := l.client.TTL(ctx, k).Result()
	if err != nil || ttl <= 0 {
		// ключ без TTL (потерянный EXPIRE) не должен блокировать навсегда
		if expErr := l.client.Expire(ctx, k, window).Err(); expErr != nil {
			slog.Warn("Failed to restore rate window", "key", k, "error", expErr)
		}
		ttl = window
	}
	return false, ttl, nil
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

// MemoryRateLimiter - окно в памяти процесса, когда Redis не настроен
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

func (l *MemoryRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		l.windows[key] = w
		l.gc(now)
	}

	w.count++
	if w.count <= limit {
		return true, 0, nil
	}
	return false, w.resetAt.Sub(now), nil
}

// gc выбрасывает истекшие окна, чтобы карта не росла бесконечно
func (l *MemoryRateLimiter) gc(now time.Time) {
	if len(l.windows) < 10000 {
		return
	}
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}
