// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

const devSecretPrefix = "dev-only-"

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string `env:"OPSDASH_ADDR,default=:8080"`
	Environment string `env:"OPSDASH_ENV,default=dev"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	Tokens    TokenConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	RateLimit RateLimitConfig

	TrustedProxies       string        `env:"TRUSTED_PROXIES"`
	RefreshSweepInterval time.Duration `env:"REFRESH_SWEEP_INTERVAL,default=1h"`
	WSAllowedOrigins     string        `env:"WS_ALLOWED_ORIGINS"`

	// SeedPassword, when set in dev without a database, seeds demo principals.
	SeedPassword string `env:"DEV_SEED_PASSWORD"`
}

// TokenConfig holds the signing secrets and lifetimes for access and refresh assertions.
type TokenConfig struct {
	AccessSecret  string        `env:"ACCESS_TOKEN_SECRET,default=dev-only-access-secret"`
	RefreshSecret string        `env:"REFRESH_TOKEN_SECRET,default=dev-only-refresh-secret"`
	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL,default=15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_TTL,default=168h"`
}

// RedisConfig configures the shared Redis client. An empty URL selects in-memory stores.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE,default=10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS,default=2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT,default=5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT,default=3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT,default=3s"`
}

// DatabaseConfig configures the Postgres pool. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=5m"`
}

// RateLimitConfig overrides the built-in limiter classes.
type RateLimitConfig struct {
	LoginMax    int           `env:"RATE_LIMIT_LOGIN_MAX,default=5"`
	LoginWindow time.Duration `env:"RATE_LIMIT_LOGIN_WINDOW,default=15m"`
	ResetMax    int           `env:"RATE_LIMIT_RESET_MAX,default=3"`
	ResetWindow time.Duration `env:"RATE_LIMIT_RESET_WINDOW,default=1h"`
	APIMax      int           `env:"RATE_LIMIT_API_MAX,default=60"`
	APIWindow   time.Duration `env:"RATE_LIMIT_API_WINDOW,default=1m"`
}

// FromEnv decodes the Server config from environment variables and validates it.
func FromEnv() (Server, error) {
	var cfg Server
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Server{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// IsDev reports whether the server runs in the development environment.
func (s Server) IsDev() bool {
	return s.Environment == "dev"
}

// Validate checks cross-field constraints that struct tags cannot express.
func (s Server) Validate() error {
	var errs []error
	if s.Tokens.AccessSecret == "" || s.Tokens.RefreshSecret == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required"))
	}
	if s.Tokens.AccessSecret == s.Tokens.RefreshSecret {
		errs = append(errs, errors.New("access and refresh secrets must differ"))
	}
	if !s.IsDev() && (strings.HasPrefix(s.Tokens.AccessSecret, devSecretPrefix) ||
		strings.HasPrefix(s.Tokens.RefreshSecret, devSecretPrefix)) {
		errs = append(errs, fmt.Errorf("development secrets are not allowed in %q", s.Environment))
	}
	if s.Tokens.AccessTTL <= 0 || s.Tokens.RefreshTTL <= s.Tokens.AccessTTL {
		errs = append(errs, errors.New("refresh TTL must exceed a positive access TTL"))
	}
	if s.SeedPassword != "" && !s.IsDev() {
		errs = append(errs, errors.New("DEV_SEED_PASSWORD is only honoured in dev"))
	}
	for name, pair := range map[string]struct {
		max    int
		window time.Duration
	}{
		"login":          {s.RateLimit.LoginMax, s.RateLimit.LoginWindow},
		"password_reset": {s.RateLimit.ResetMax, s.RateLimit.ResetWindow},
		"api":            {s.RateLimit.APIMax, s.RateLimit.APIWindow},
	} {
		if pair.max <= 0 || pair.window <= 0 {
			errs = append(errs, fmt.Errorf("rate limit %s: max and window must be positive", name))
		}
	}
	return errors.Join(errs...)
}

// Level parses LogLevel, defaulting to info.
func (s Server) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// AllowedOrigins splits WSAllowedOrigins into patterns for the websocket handshake.
func (s Server) AllowedOrigins() []string {
	return SplitCSV(s.WSAllowedOrigins)
}

// SplitCSV splits a comma-separated value, dropping empty entries.
func SplitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
