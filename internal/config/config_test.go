package config

import (
	"sync"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetSingleton clears the package-level state so each test loads fresh.
func resetSingleton() {
	instance = nil
	once = sync.Once{}
	loadErr = nil
}

func newViper(values map[string]any) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	for key, value := range values {
		v.Set(key, value)
	}
	return v
}

func TestGetUninitialized(t *testing.T) {
	resetSingleton()
	assert.Panics(t, func() { Get() })
}

func TestLoadAndGet(t *testing.T) {
	resetSingleton()

	v := newViper(map[string]any{
		"server.url":      "https://iq.example.com/",
		"server.username": "admin",
		"server.password": "secret",
		"fetch.workers":   3,
	})
	require.NoError(t, Load(v))

	cfg := Get()
	assert.Equal(t, "https://iq.example.com", cfg.Server.URL, "trailing slash is trimmed")
	assert.Equal(t, 3, cfg.Fetch.Workers)
	assert.Equal(t, "raw_reports", cfg.Fetch.OutputDir)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadIsIdempotent(t *testing.T) {
	resetSingleton()

	v := newViper(map[string]any{
		"server.url":      "https://iq.example.com",
		"server.username": "admin",
		"server.password": "secret",
	})
	require.NoError(t, Load(v))
	first := Get()

	v2 := newViper(map[string]any{
		"server.url":      "https://other.example.com",
		"server.username": "admin",
		"server.password": "secret",
	})
	require.NoError(t, Load(v2))
	assert.Same(t, first, Get())
}

func TestWorkerCountFallback(t *testing.T) {
	for _, workers := range []any{0, -4, "not-a-number"} {
		resetSingleton()
		v := newViper(map[string]any{
			"server.url":      "https://iq.example.com",
			"server.username": "admin",
			"server.password": "secret",
			"fetch.workers":   workers,
		})
		if err := Load(v); err != nil {
			// Unparsable values fail unmarshal; that path is also acceptable
			// only for non-numeric input.
			assert.Equal(t, "not-a-number", workers)
			continue
		}
		assert.Equal(t, DefaultWorkers, Get().Fetch.Workers, "workers=%v", workers)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing URL",
			mutate:  func(c *Config) { c.Server.URL = "" },
			wantErr: "server URL is required",
		},
		{
			name:    "relative URL",
			mutate:  func(c *Config) { c.Server.URL = "iq.example.com" },
			wantErr: "not a valid absolute URL",
		},
		{
			name:    "blank username",
			mutate:  func(c *Config) { c.Server.Username = "   " },
			wantErr: "username is required",
		},
		{
			name:    "blank password",
			mutate:  func(c *Config) { c.Server.Password = "" },
			wantErr: "password is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{Server: ServerConfig{
				URL:      "https://iq.example.com",
				Username: "admin",
				Password: "secret",
			}}
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestEnvBindings(t *testing.T) {
	resetSingleton()

	t.Setenv("IQ_SERVER_URL", "https://env.example.com")
	t.Setenv("IQ_USERNAME", "env-user")
	t.Setenv("IQ_PASSWORD", "env-pass")
	t.Setenv("NUM_WORKERS", "12")
	t.Setenv("OUTPUT_DIR", "/tmp/reports")

	v := viper.New()
	SetDefaults(v)
	require.NoError(t, Load(v))

	cfg := Get()
	assert.Equal(t, "https://env.example.com", cfg.Server.URL)
	assert.Equal(t, "env-user", cfg.Server.Username)
	assert.Equal(t, "env-pass", cfg.Server.Password)
	assert.Equal(t, 12, cfg.Fetch.Workers)
	assert.Equal(t, "/tmp/reports", cfg.Fetch.OutputDir)
}
