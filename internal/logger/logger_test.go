package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}

func TestWithContextAddsIDs(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "info", "json")

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithUserID(ctx, "user-1")
	WithContext(ctx).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "user-1", line["user_id"])
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}

func TestNewRequestIDIsUnique(t *testing.T) {
	assert.NotEqual(t, NewRequestID(), NewRequestID())
}
