// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the chat server needs to start.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	NATSURL   string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	// DatabaseURL is the PostgreSQL DSN for the campaign directory.
	DatabaseURL string `env:"DATABASE_URL" envDefault:"postgres://localhost/campaign_chat?sslmode=disable"`

	// AppSecret signs bearer and realtime tokens.
	AppSecret string `env:"APP_SECRET" envDefault:"change-me"`

	// TokenEndpoint is where sessions exchange bearer credentials for
	// realtime tokens. Defaults to this server's own endpoint.
	TokenEndpoint string        `env:"TOKEN_ENDPOINT" envDefault:"http://localhost:8080/api/realtime/token"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"1h"`

	// HistoryLimit is the history page size used to hydrate sessions.
	HistoryLimit int `env:"HISTORY_LIMIT" envDefault:"25"`

	WorkerPoolSize int           `env:"WORKER_POOL_SIZE" envDefault:"256"`
	MaxConnections int           `env:"MAX_CONNECTIONS" envDefault:"100000"`
	ReadTimeout    time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
