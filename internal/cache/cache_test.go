package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"truefantix/internal/models"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRateLimiter_FirstHitSetsWindow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisRateLimiter(db)

	mock.ExpectIncr("rl:login:1.2.3.4").SetVal(1)
	mock.ExpectExpire("rl:login:1.2.3.4", 10*time.Minute).SetVal(true)

	ok, retry, err := l.Allow(context.Background(), "login:1.2.3.4", 10, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, retry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRateLimiter_OverLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisRateLimiter(db)

	mock.ExpectIncr("rl:checkout:ip").SetVal(21)
	mock.ExpectTTL("rl:checkout:ip").SetVal(42 * time.Second)

	ok, retry, err := l.Allow(context.Background(), "checkout:ip", 20, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 42*time.Second, retry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRateLimiter_RestoresLostWindow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisRateLimiter(db)

	mock.ExpectIncr("rl:checkout:ip").SetVal(21)
	mock.ExpectTTL("rl:checkout:ip").SetVal(-1)
	mock.ExpectExpire("rl:checkout:ip", time.Minute).SetErr(errors.New("connection reset"))

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ok, retry, err := l.Allow(context.Background(), "checkout:ip", 20, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retry)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, logs.String(), "Failed to restore rate window")
	assert.Contains(t, logs.String(), "connection reset")
}

func TestMemoryRateLimiter_Window(t *testing.T) {
	l := NewMemoryRateLimiter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, _, err := l.Allow(ctx, "register:ip", 5, 10*time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, retry, _ := l.Allow(ctx, "register:ip", 5, 10*time.Minute)
	assert.False(t, ok)
	assert.Equal(t, 10*time.Minute, retry)

	ok, _, _ = l.Allow(ctx, "register:other", 5, 10*time.Minute)
	assert.True(t, ok, "keys are independent")

	now = now.Add(10 * time.Minute)
	ok, _, _ = l.Allow(ctx, "register:ip", 5, 10*time.Minute)
	assert.True(t, ok, "window resets")
}

func TestRedisSessionCache_GetMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisSessionCache(db)

	mock.ExpectGet("session:abc").RedisNil()

	s, err := c.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSessionCache_SetCapsTTL(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisSessionCache(db)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	s := &models.Session{ID: "s1", UserID: "u1", TokenHash: "abc", ExpiresAt: now.Add(30 * 24 * time.Hour)}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	mock.ExpectSet("session:abc", data, maxSessionTTL).SetVal("OK")

	require.NoError(t, c.Set(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSessionCache_GetHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisSessionCache(db)

	mock.ExpectGet("session:abc").SetVal(`{"id":"s1","userId":"u1","expiresAt":"2030-01-01T00:00:00Z"}`)

	s, err := c.Get(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, "abc", s.TokenHash)
}
