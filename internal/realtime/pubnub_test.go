package realtime

import (
	"testing"

	"truefantix/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestUserChannel(t *testing.T) {
	assert.Equal(t, "user-42", UserChannel("42"))
}

func TestNewNotifier(t *testing.T) {
	assert.IsType(t, NopNotifier{}, NewNotifier(config.PubNubConfig{}))
	assert.IsType(t, NopNotifier{}, NewNotifier(config.PubNubConfig{PublishKey: "pub-only"}))

	n := NewNotifier(config.PubNubConfig{PublishKey: "pub", SubscribeKey: "sub", UserID: "truefantix-server"})
	assert.IsType(t, &PubNubNotifier{}, n)
}

func TestNopNotifier(t *testing.T) {
	assert.NoError(t, NopNotifier{}.Notify(t.Context(), "u1", map[string]any{"type": "ORDER"}))
}
