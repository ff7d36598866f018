// Package config loads configuration from environment variables and .env files.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the rerank service
type Config struct {
	// Server
	HTTPPort       int      `env:"HTTP_PORT" envDefault:"8080"`
	Environment    string   `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// Backend
	BackendURL     string        `env:"BACKEND_URL" envDefault:"http://localhost:11434"`
	BackendAPIType string        `env:"BACKEND_API_TYPE" envDefault:"auto"`
	DefaultModel   string        `env:"DEFAULT_MODEL" envDefault:"bge-reranker-v2-m3"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// Rerank defaults, applied when a request leaves them unset
	DefaultTopK      int     `env:"DEFAULT_TOP_K" envDefault:"10"`
	DefaultThreshold float64 `env:"DEFAULT_THRESHOLD" envDefault:"0"`
	DefaultBatchSize int     `env:"DEFAULT_BATCH_SIZE" envDefault:"5"`

	// Auth. An empty API key list disables authentication (development).
	APIKeys   []string      `env:"API_KEYS" envSeparator:","`
	JWTSecret string        `env:"JWT_SECRET" envDefault:"change-this-in-production"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
}

// Load loads configuration from .env file (if present) and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
