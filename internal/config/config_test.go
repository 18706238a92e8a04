package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 10.0, cfg.Dispatch.RadiusKm)
	assert.Equal(t, 50, cfg.Dispatch.MaxCandidates)
	assert.Equal(t, 3*time.Second, cfg.Dispatch.ChannelTimeout)
	assert.Equal(t, 20, cfg.Dispatch.CreateLimit)
	assert.Equal(t, time.Minute, cfg.Dispatch.CreateWindow)
	assert.Equal(t, 5*time.Second, cfg.Tracking.MinInterval)
	assert.False(t, cfg.Push.WebPushEnabled())
	assert.False(t, cfg.Push.FCMEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DISPATCH_RADIUS_KM", "2.5")
	t.Setenv("TRACKING_MIN_INTERVAL", "10s")
	t.Setenv("VAPID_PUBLIC_KEY", "pub")
	t.Setenv("VAPID_PRIVATE_KEY", "priv")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://app.example.com,https://ops.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 2.5, cfg.Dispatch.RadiusKm)
	assert.Equal(t, 10*time.Second, cfg.Tracking.MinInterval)
	assert.True(t, cfg.Push.WebPushEnabled())
	assert.Equal(t, []string{"https://app.example.com", "https://ops.example.com"}, cfg.AllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"zero radius", map[string]string{"JWT_SECRET": "s", "DISPATCH_RADIUS_KM": "0"}},
		{"negative candidates", map[string]string{"JWT_SECRET": "s", "DISPATCH_MAX_CANDIDATES": "-1"}},
		{"bad duration", map[string]string{"JWT_SECRET": "s", "CHANNEL_TIMEOUT": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
