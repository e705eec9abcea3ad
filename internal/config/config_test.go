package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "tft_session", cfg.Auth.CookieName)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 15*time.Minute, cfg.Marketplace.ReservationWindow)
	assert.Equal(t, 60*time.Minute, cfg.Marketplace.EscrowTimeout)
	assert.Equal(t, int64(875), cfg.Marketplace.AdminFeeBps)
	assert.Equal(t, 10, cfg.Marketplace.MaxTicketsPerOrder)
	assert.Equal(t, "tickets", cfg.Elasticsearch.Index)
	assert.False(t, cfg.Elasticsearch.Enabled())
}

func TestValidateRejectsShortSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "short")
	assert.Error(t, Load().Validate())
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("DB_DRIVER", "sqlite")
	assert.Error(t, Load().Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RESERVATION_WINDOW", "5m")
	t.Setenv("ADMIN_FEE_BPS", "1000")
	t.Setenv("SESSION_COOKIE_SECURE", "true")
	t.Setenv("ESCROW_TIMEOUT", "not-a-duration")

	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.Marketplace.ReservationWindow)
	assert.Equal(t, int64(1000), cfg.Marketplace.AdminFeeBps)
	assert.True(t, cfg.Auth.CookieSecure)
	assert.Equal(t, 60*time.Minute, cfg.Marketplace.EscrowTimeout)
}
