package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTOPROCESS_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, time.Second, cfg.TriggerDelay)
	assert.Equal(t, 2, cfg.Workers)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AUTOPROCESS_API_KEY", "secret")
	t.Setenv("AUTOPROCESS_STORE_DRIVER", "sqlite")
	t.Setenv("AUTOPROCESS_STORE_DSN", "/tmp/autoprocess.db")
	t.Setenv("AUTOPROCESS_TRIGGER_DELAY", "250ms")
	t.Setenv("AUTOPROCESS_LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/autoprocess.db", cfg.Store.DSN)
	assert.Equal(t, 250*time.Millisecond, cfg.TriggerDelay)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("AUTOPROCESS_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			APIKey:      "secret",
			Store:       StoreConfig{Driver: StoreMemory},
			Workers:     1,
			Parallelism: 1,
		}
	}

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"memory store", func(c *Config) {}, false},
		{"postgres with dsn", func(c *Config) { c.Store = StoreConfig{Driver: StorePostgres, DSN: "postgres://localhost/db"} }, false},
		{"sqlite without dsn", func(c *Config) { c.Store.Driver = StoreSQLite }, true},
		{"no api key", func(c *Config) { c.APIKey = "" }, true},
		{"blank api keys", func(c *Config) { c.APIKey = " , " }, true},
		{"rotated api keys", func(c *Config) { c.APIKey = "old,new" }, false},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, true},
		{"no workers", func(c *Config) { c.Workers = 0 }, true},
		{"no parallelism", func(c *Config) { c.Parallelism = 0 }, true},
		{"negative delay", func(c *Config) { c.TriggerDelay = -time.Second }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
