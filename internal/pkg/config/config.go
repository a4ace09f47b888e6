package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Session backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	APIBaseURL  string `env:"API_BASE_URL, default=http://localhost:8000"`
	Env         string `env:"ENV,          default=development"`
	LogLevel    string `env:"LOG_LEVEL,    default=info"`
	ConsoleAddr string `env:"CONSOLE_ADDR, default=127.0.0.1:5173"`

	// LogoutWindow bounds the logout-intent flag.
	LogoutWindow time.Duration `env:"LOGOUT_SUPPRESS_WINDOW, default=1s"`

	Session SessionConfig
	Redis   RedisConfig
	Mongo   MongoConfig
	Audit   AuditConfig
}

type SessionConfig struct {
	Backend      string        `env:"SESSION_BACKEND,       default=file"`
	File         string        `env:"SESSION_FILE"`
	PollInterval time.Duration `env:"SESSION_POLL_INTERVAL, default=500ms"`
	Namespace    string        `env:"SESSION_NAMESPACE,     default=forenvision"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

// MongoConfig enables the transition audit trail when URI is set.
type MongoConfig struct {
	URI      string `env:"MONGO_URI"`
	Database string `env:"MONGO_DB, default=forenvision_console"`
}

type AuditConfig struct {
	Workers int `env:"AUDIT_WORKERS, default=2"`
}

// Development reports whether human-friendly output should be used.
func (c *Config) Development() bool {
	return c.Env == "development"
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("config: failed to load configuration: %w", err)
	}
	switch cfg.Session.Backend {
	case BackendFile, BackendRedis, BackendMemory:
	default:
		return nil, fmt.Errorf("config: unknown SESSION_BACKEND %q", cfg.Session.Backend)
	}
	return &cfg, nil
}
