package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the scan terminal service.
type Config struct {
	Server   ServerConfig
	Backend  BackendConfig
	Merchant MerchantConfig
	Log      LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// BackendConfig holds configuration for the remote loyalty platform API.
// APIToken is attached as a Bearer token to every backend call when set.
type BackendConfig struct {
	BaseURL        string  `envconfig:"BACKEND_BASE_URL" default:"http://localhost:5000/api"`
	APIToken       string  `envconfig:"BACKEND_API_TOKEN"`
	Timeout        int     `envconfig:"BACKEND_TIMEOUT" default:"15"` // seconds
	RateLimit      float64 `envconfig:"BACKEND_RATE_LIMIT" default:"10"`
	RateBurst      int     `envconfig:"BACKEND_RATE_BURST" default:"5"`
	ConnectRetries int     `envconfig:"BACKEND_CONNECT_RETRIES" default:"5"`
}

// RequestTimeout returns the per-call timeout as a duration.
func (c BackendConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// MerchantConfig identifies the merchant this terminal scans for.
// When ID is empty, the merchant is resolved from UserID at startup.
type MerchantConfig struct {
	ID     string `envconfig:"MERCHANT_ID"`
	UserID string `envconfig:"MERCHANT_USER_ID"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load parses environment variables into the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
