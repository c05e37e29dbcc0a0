// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/timgluz/autoprocess/secret"
)

const Prefix = "AUTOPROCESS"

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	ListenAddr      string `envconfig:"LISTEN_ADDR" default:":8080"`
	APIKey          string `envconfig:"API_KEY" required:"true"` // comma-separated to allow key rotation
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string `envconfig:"LOG_FORMAT" default:"text"`
	DefinitionsFile string `envconfig:"DEFINITIONS_FILE"`

	Store StoreConfig `envconfig:"STORE"`

	Workers         int           `envconfig:"WORKERS" default:"2"`
	Parallelism     int           `envconfig:"PARALLELISM" default:"4"`
	TriggerDelay    time.Duration `envconfig:"TRIGGER_DELAY" default:"1s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

type StoreConfig struct {
	Driver string `envconfig:"DRIVER" default:"memory"`
	DSN    string `envconfig:"DSN"`
}

// Load reads AUTOPROCESS_* variables, e.g. AUTOPROCESS_STORE_DRIVER.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// APITokens returns the accepted bearer tokens.
func (c *Config) APITokens() []string {
	return secret.ParseTokens(c.APIKey)
}

func (c *Config) Validate() error {
	if len(c.APITokens()) == 0 {
		return fmt.Errorf("API key is required")
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store driver %s requires a DSN", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive, got %d", c.Parallelism)
	}
	if c.TriggerDelay < 0 {
		return fmt.Errorf("trigger delay must not be negative, got %s", c.TriggerDelay)
	}
	return nil
}
