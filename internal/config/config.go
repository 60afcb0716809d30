// Package config loads runtime configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const minSecretLen = 16

type Config struct {
	Addr      string `env:"MERELAX_ADDR,default=:8080"`
	DBPath    string `env:"MERELAX_DB_PATH,default=merelax.db"`
	LogLevel  string `env:"MERELAX_LOG_LEVEL,default=info"`
	LogFormat string `env:"MERELAX_LOG_FORMAT,default=text"`

	JWTSecret           string        `env:"MERELAX_JWT_SECRET,required"`
	AccessTokenTTL      time.Duration `env:"MERELAX_ACCESS_TOKEN_TTL,default=30m"`
	RefreshTokenTTL     time.Duration `env:"MERELAX_REFRESH_TOKEN_TTL,default=168h"`
	VerificationCodeTTL time.Duration `env:"MERELAX_VERIFICATION_CODE_TTL,default=5m"`

	Timezone       string        `env:"MERELAX_TIMEZONE,default=Local"`
	AllowedOrigins []string      `env:"MERELAX_CORS_ALLOWED_ORIGINS,default=http://localhost:3000,http://127.0.0.1:3000"`
	PurgeInterval  time.Duration `env:"MERELAX_PURGE_INTERVAL,default=1h"`

	// Set only when a reverse proxy in front of the server overwrites
	// X-Forwarded-For or CF-Connecting-IP. Rate limits key on them then.
	TrustedProxy bool `env:"MERELAX_TRUSTED_PROXY,default=false"`

	LineChannelID     string `env:"LINE_CHANNEL_ID"`
	LineChannelSecret string `env:"LINE_CHANNEL_SECRET"`
	LineRedirectURI   string `env:"LINE_REDIRECT_URI"`

	location *time.Location
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadWith(ctx, envconfig.OsLookuper())
}

func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.JWTSecret) < minSecretLen {
		return fmt.Errorf("MERELAX_JWT_SECRET must be at least %d bytes", minSecretLen)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.VerificationCodeTTL <= 0 {
		return errors.New("token and code lifetimes must be positive")
	}
	if c.PurgeInterval <= 0 {
		return errors.New("MERELAX_PURGE_INTERVAL must be positive")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("MERELAX_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("MERELAX_TIMEZONE: %w", err)
	}
	c.location = loc
	return nil
}

// Location is the time zone calendar days are computed in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

func (c *Config) LineConfigured() bool {
	return c.LineChannelID != "" && c.LineChannelSecret != "" && c.LineRedirectURI != ""
}
