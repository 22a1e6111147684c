// Package config reads process configuration from the environment. Binaries
// import github.com/joho/godotenv/autoload so a local .env file is honored.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Backend names accepted by GOSTOP_BACKEND.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Server configures cmd/server.
type Server struct {
	Addr        string        `env:"GOSTOP_ADDR" envDefault:":8080"`
	Backend     string        `env:"GOSTOP_BACKEND" envDefault:"memory"`
	RedisAddr   string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB     int           `env:"REDIS_DB" envDefault:"0"`
	PresenceTTL time.Duration `env:"GOSTOP_PRESENCE_TTL" envDefault:"15s"`
	TokenExpire string        `env:"TOKEN_EXPIRE_TIME" envDefault:"72h"`
	QueueName   string        `env:"HISTORIAN_QUEUE_NAME" envDefault:"gostop_actions"`
	AIDelay     time.Duration `env:"GOSTOP_AI_DELAY" envDefault:"0s"` // pause before scripted practice moves
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"https://*,http://*"`
}

// Historian configures cmd/historian.
type Historian struct {
	RedisAddr   string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB     int           `env:"REDIS_DB" envDefault:"0"`
	QueueName   string        `env:"HISTORIAN_QUEUE_NAME" envDefault:"gostop_actions"`
	BatchSize   int           `env:"HISTORIAN_BATCH_SIZE" envDefault:"20"`
	FlushMs     int           `env:"HISTORIAN_FLUSH_MS" envDefault:"500"`
	Inactivity  time.Duration `env:"GAME_INACTIVITY_TIMEOUT" envDefault:"10m"`
	DatabaseURL string        `env:"DATABASE_URL"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
}

// FlushInterval is FlushMs as a duration.
func (h Historian) FlushInterval() time.Duration {
	return time.Duration(h.FlushMs) * time.Millisecond
}

// Client configures cmd/gostop.
type Client struct {
	RelayURL    string        `env:"GOSTOP_RELAY_URL" envDefault:"ws://localhost:8080/relay/ws"`
	HTTPURL     string        `env:"GOSTOP_HTTP_URL" envDefault:"http://localhost:8080"`
	Name        string        `env:"GOSTOP_NAME" envDefault:"player"`
	Heartbeat   time.Duration `env:"GOSTOP_HEARTBEAT" envDefault:"2s"`
	TurnTimeout time.Duration `env:"GOSTOP_TURN_TIMEOUT"` // zero defers to the rules
	AIDelay     time.Duration `env:"GOSTOP_AI_DELAY" envDefault:"0s"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"warn"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadServer parses and checks the server configuration.
func LoadServer() (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Backend != BackendMemory && cfg.Backend != BackendRedis {
		return cfg, fmt.Errorf("GOSTOP_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, cfg.Backend)
	}
	if cfg.PresenceTTL <= 0 {
		return cfg, fmt.Errorf("GOSTOP_PRESENCE_TTL must be positive")
	}
	return cfg, nil
}

// LoadHistorian parses and checks the historian configuration.
func LoadHistorian() (Historian, error) {
	var cfg Historian
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.BatchSize < 1 || cfg.FlushMs < 1 {
		return cfg, fmt.Errorf("HISTORIAN_BATCH_SIZE and HISTORIAN_FLUSH_MS must be positive")
	}
	return cfg, nil
}

// LoadClient parses the terminal client configuration.
func LoadClient() (Client, error) {
	var cfg Client
	err := ParseEnv(&cfg)
	return cfg, err
}

// NewLogger returns a text logger at the named level.
func NewLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, nil
}
