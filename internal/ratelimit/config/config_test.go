package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformconfig "opsdash/internal/platform/config"
	"opsdash/internal/ratelimit/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		class  models.Class
		max    int
		window time.Duration
	}{
		{models.ClassLogin, 5, 15 * time.Minute},
		{models.ClassPasswordReset, 3, time.Hour},
		{models.ClassAPI, 60, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.class.String(), func(t *testing.T) {
			l, ok := cfg.Limit(tt.class)
			require.True(t, ok)
			assert.Equal(t, tt.max, l.Max)
			assert.Equal(t, tt.window, l.Window)
		})
	}
}

func TestFromServerOverrides(t *testing.T) {
	cfg := FromServer(platformconfig.RateLimitConfig{LoginMax: 10, APIWindow: 30 * time.Second})

	login, _ := cfg.Limit(models.ClassLogin)
	assert.Equal(t, Limit{Max: 10, Window: 15 * time.Minute}, login)

	api, _ := cfg.Limit(models.ClassAPI)
	assert.Equal(t, Limit{Max: 60, Window: 30 * time.Second}, api)

	reset, _ := cfg.Limit(models.ClassPasswordReset)
	assert.Equal(t, Limit{Max: 3, Window: time.Hour}, reset)
}

func TestUnknownClass(t *testing.T) {
	_, ok := DefaultConfig().Limit(models.Class("export"))
	assert.False(t, ok)
}

func TestLimitRejectsClassOutsideKnownSet(t *testing.T) {
	cfg := &Config{Limits: map[models.Class]Limit{
		models.Class("export"): {Max: 10, Window: time.Minute},
	}}
	_, ok := cfg.Limit(models.Class("export"))
	assert.False(t, ok)
}
