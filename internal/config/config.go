// Package config reads the process configuration from TXWATCH_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/gabapcia/txwatch/internal/pkg/validator"
	"github.com/kelseyhightower/envconfig"
)

const prefix = "TXWATCH"

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StoragePebble = "pebble"
)

type Redis struct {
	Addr          string `envconfig:"ADDR" default:"localhost:6379" validate:"required,hostname_port"`
	Username      string `envconfig:"USERNAME"`
	Password      string `envconfig:"PASSWORD"`
	DB            int    `envconfig:"DB" default:"0" validate:"gte=0"`
	EventsChannel string `envconfig:"EVENTS_CHANNEL" default:"txwatch:events"`
}

type Config struct {
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	NetworksFile string `envconfig:"NETWORKS_FILE" default:"networks.yaml" validate:"required"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"memory" validate:"oneof=memory redis pebble"`
	Redis         Redis  `envconfig:"REDIS"`
	PebblePath    string `envconfig:"PEBBLE_PATH" default:"txwatch.db" validate:"required_if=StorageDriver pebble"`

	// HTTPAddr is the listen address of the snapshot API. Empty disables it.
	HTTPAddr string `envconfig:"HTTP_ADDR" validate:"omitempty,hostname_port"`

	ExplorerAPIKey    string        `envconfig:"EXPLORER_API_KEY"`
	ExplorerTimeout   time.Duration `envconfig:"EXPLORER_TIMEOUT" default:"30s" validate:"gt=0"`
	ExplorerRateLimit float64       `envconfig:"EXPLORER_RATE_LIMIT" default:"5" validate:"gte=0"`
	RPCTimeout        time.Duration `envconfig:"RPC_TIMEOUT" default:"30s" validate:"gt=0"`

	// PreferLocalTokens skips on-chain token metadata lookups.
	PreferLocalTokens bool `envconfig:"PREFER_LOCAL_TOKENS" default:"false"`

	TelemetryEnabled  bool          `envconfig:"TELEMETRY_ENABLED" default:"false"`
	TelemetryInterval time.Duration `envconfig:"TELEMETRY_INTERVAL" default:"30s" validate:"gte=0"`
	ServiceName       string        `envconfig:"SERVICE_NAME" default:"txwatch" validate:"required"`
}

// Load reads, defaults and validates the configuration.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	if err := validator.Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
