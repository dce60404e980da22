// Configuration for the iqfetch CLI. Values come from the environment
// (optionally seeded from a .env file by the command layer) or a config file,
// both read through viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// DefaultWorkers is the fetch concurrency used when none is configured or the
// configured value is invalid.
const DefaultWorkers = 8

// Config is the root configuration structure for the tool.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Logger LoggerConfig `mapstructure:"logger"`
}

// ServerConfig holds the IQ server endpoint and credentials.
type ServerConfig struct {
	URL            string `mapstructure:"url"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	OrganizationID string `mapstructure:"organization_id"`
}

// FetchConfig holds settings for the fetch pipeline.
type FetchConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Workers   int    `mapstructure:"workers"`
}

// ColorConfig defines console colors per log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug"`
	Info  string `mapstructure:"info"`
	Warn  string `mapstructure:"warn"`
	Error string `mapstructure:"error"`
	Fatal string `mapstructure:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level"`
	Format      string      `mapstructure:"format"`
	ServiceName string      `mapstructure:"service_name"`
	LogFile     string      `mapstructure:"log_file"`
	MaxSize     int         `mapstructure:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups"`
	MaxAge      int         `mapstructure:"max_age"`
	Compress    bool        `mapstructure:"compress"`
	Colors      ColorConfig `mapstructure:"colors"`
}

// SetDefaults registers defaults and the environment bindings the original
// deployment uses (IQ_SERVER_URL and friends) on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("fetch.output_dir", "raw_reports")
	v.SetDefault("fetch.workers", DefaultWorkers)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "iqfetch")
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "blue")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "red")

	// Each key is bound explicitly; AutomaticEnv cannot map the nested keys.
	_ = v.BindEnv("server.url", "IQ_SERVER_URL")
	_ = v.BindEnv("server.username", "IQ_USERNAME")
	_ = v.BindEnv("server.password", "IQ_PASSWORD")
	_ = v.BindEnv("server.organization_id", "ORGANIZATION_ID")
	_ = v.BindEnv("fetch.output_dir", "OUTPUT_DIR")
	_ = v.BindEnv("fetch.workers", "NUM_WORKERS")
	_ = v.BindEnv("logger.level", "LOG_LEVEL")
}

// Load unmarshals and validates the configuration exactly once and stores it
// as the process-wide instance. Subsequent calls are no-ops returning the
// first result.
func Load(v *viper.Viper) error {
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("failed to unmarshal config: %w", err)
			return
		}
		cfg.normalize()
		if err := cfg.Validate(); err != nil {
			loadErr = err
			return
		}
		instance = &cfg
	})
	return loadErr
}

// Get returns the loaded configuration. It panics if Load has not succeeded;
// that is a programming error, not a runtime condition.
func Get() *Config {
	if instance == nil {
		panic("config.Get called before config.Load")
	}
	return instance
}

// normalize cleans up values that have a safe fallback instead of a
// validation failure: trailing slashes on the URL and a non-positive worker
// count.
func (c *Config) normalize() {
	c.Server.URL = strings.TrimRight(strings.TrimSpace(c.Server.URL), "/")
	if c.Fetch.Workers < 1 {
		c.Fetch.Workers = DefaultWorkers
	}
	if c.Fetch.OutputDir == "" {
		c.Fetch.OutputDir = "raw_reports"
	}
}

// Validate checks the settings that must be present before any network
// activity. Failures here are fatal.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server URL is required (IQ_SERVER_URL)")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server URL %q is not a valid absolute URL", c.Server.URL)
	}
	if strings.TrimSpace(c.Server.Username) == "" {
		return fmt.Errorf("username is required (IQ_USERNAME)")
	}
	if strings.TrimSpace(c.Server.Password) == "" {
		return fmt.Errorf("password is required (IQ_PASSWORD)")
	}
	return nil
}
