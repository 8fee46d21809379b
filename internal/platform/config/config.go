package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	FrontendURL string `env:"FRONTEND_URL" default:"http://localhost:5173"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	SessionSecret    string        `env:"SESSION_SECRET"`
	SessionMaxAge    time.Duration `env:"SESSION_MAX_AGE" default:"168h"` // 7 days
	JWTSecret        string        `env:"JWT_SECRET"`
	TokenTTL         time.Duration `env:"TOKEN_TTL" default:"24h"`
	EnvEncryptionKey string        `env:"ENV_ENCRYPTION_KEY"`

	CoolifyAPIURL      string        `env:"COOLIFY_API_URL"`
	CoolifyAPIToken    string        `env:"COOLIFY_API_TOKEN"`
	CoolifyProjectUUID string        `env:"COOLIFY_PROJECT_UUID"`
	CoolifyServerUUID  string        `env:"COOLIFY_SERVER_UUID"`
	CoolifyEnvironment string        `env:"COOLIFY_ENVIRONMENT"`
	PlatformTimeout    time.Duration `env:"PLATFORM_TIMEOUT" default:"30s"`
	StatusSyncTimeout  time.Duration `env:"STATUS_SYNC_TIMEOUT" default:"10s"`

	BaseDomain     string `env:"BASE_DOMAIN" default:"hostingroble.com"`
	MaxAppsPerUser int    `env:"MAX_APPS_PER_USER" default:"2"`
}

func (c *Config) Production() bool { return c.AppEnv == "production" }

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"SESSION_SECRET", cfg.SessionSecret},
		{"JWT_SECRET", cfg.JWTSecret},
		{"COOLIFY_API_URL", cfg.CoolifyAPIURL},
		{"COOLIFY_API_TOKEN", cfg.CoolifyAPIToken},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if len(cfg.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}

	if _, err := url.ParseRequestURI(cfg.CoolifyAPIURL); err != nil {
		return fmt.Errorf("COOLIFY_API_URL must be a valid URL: %w", err)
	}

	if cfg.MaxAppsPerUser < 1 {
		return errors.New("MAX_APPS_PER_USER must be at least 1")
	}
	if cfg.PlatformTimeout <= 0 || cfg.StatusSyncTimeout <= 0 {
		return errors.New("PLATFORM_TIMEOUT and STATUS_SYNC_TIMEOUT must be positive")
	}

	if cfg.EnvEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(cfg.EnvEncryptionKey)
		if err != nil {
			return fmt.Errorf("ENV_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("ENV_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
	}

	if cfg.Production() {
		if mode := sslMode(cfg.DatabaseURL); mode == "disable" || mode == "allow" {
			return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
		}
	}

	return nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get("sslmode"))
}
