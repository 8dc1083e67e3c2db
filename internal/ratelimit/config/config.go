// Package config holds the limiter classes and their (window, max) pairs.
package config

import (
	"time"

	platformconfig "opsdash/internal/platform/config"
	"opsdash/internal/ratelimit/models"
)

// Config maps each action class to its limit.
type Config struct {
	Limits map[models.Class]Limit
}

// Limit defines a fixed window: at most Max requests per Window.
type Limit struct {
	Max    int
	Window time.Duration
}

// DefaultConfig returns the built-in classes.
func DefaultConfig() *Config {
	return &Config{
		Limits: map[models.Class]Limit{
			models.ClassLogin:         {Max: 5, Window: 15 * time.Minute},
			models.ClassPasswordReset: {Max: 3, Window: time.Hour},
			models.ClassAPI:           {Max: 60, Window: time.Minute},
		},
	}
}

// FromServer applies environment overrides on top of the defaults.
// Non-positive values keep the default.
func FromServer(rl platformconfig.RateLimitConfig) *Config {
	cfg := DefaultConfig()
	cfg.override(models.ClassLogin, rl.LoginMax, rl.LoginWindow)
	cfg.override(models.ClassPasswordReset, rl.ResetMax, rl.ResetWindow)
	cfg.override(models.ClassAPI, rl.APIMax, rl.APIWindow)
	return cfg
}

func (c *Config) override(class models.Class, maxRequests int, window time.Duration) {
	l := c.Limits[class]
	if maxRequests > 0 {
		l.Max = maxRequests
	}
	if window > 0 {
		l.Window = window
	}
	c.Limits[class] = l
}

// Limit returns the limit configured for class.
func (c *Config) Limit(class models.Class) (Limit, bool) {
	if !class.IsValid() {
		return Limit{}, false
	}
	l, ok := c.Limits[class]
	if !ok || l.Max <= 0 || l.Window <= 0 {
		return Limit{}, false
	}
	return l, true
}
