// Package config loads restaurant-sync settings.
//
// Settings come from, lowest priority first: built-in defaults, a YAML file
// (restaurants.yaml in the working directory or
// $HOME/.config/restaurant-sync/), environment variables prefixed with
// RESTAURANTS_ (dots become underscores, e.g. RESTAURANTS_SERVER_URL), and
// command-line flags bound by the CLI.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys.
const (
	KeyServerURL        = "server.url"
	KeyRemoteTimeout    = "remote.timeout"
	KeyReconcileTimeout = "remote.reconcile_timeout"
	KeyBreakerEnabled   = "remote.breaker.enabled"
	KeyBreakerFailures  = "remote.breaker.failures"
	KeyBreakerCooldown  = "remote.breaker.cooldown"
	KeyCachePath        = "cache.path"
	KeyRefreshInterval  = "cache.refresh_interval"
	KeyDrainInterval    = "queue.drain_interval"
	KeyDedupeFavorites  = "queue.dedupe_favorites"
	KeyDashboardPort    = "dashboard.port"
	KeyLogFile          = "log.file"
	KeyLogMaxSizeMB     = "log.max_size_mb"
	KeyLogMaxBackups    = "log.max_backups"
	KeyLogMaxAgeDays    = "log.max_age_days"
)

const (
	// FileName is the config file name without extension.
	FileName = "restaurants"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "RESTAURANTS"
)

// Config is the effective configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig locates the review server.
type ServerConfig struct {
	URL string `mapstructure:"url"`
}

// RemoteConfig tunes server calls.
type RemoteConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	ReconcileTimeout time.Duration `mapstructure:"reconcile_timeout"`
	Breaker          BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Failures uint32        `mapstructure:"failures"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// CacheConfig locates the local cache.
type CacheConfig struct {
	Path            string        `mapstructure:"path"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// QueueConfig tunes the retry queue and its replay.
type QueueConfig struct {
	DrainInterval   time.Duration `mapstructure:"drain_interval"`
	DedupeFavorites bool          `mapstructure:"dedupe_favorites"`
}

// DashboardConfig configures the WebSocket dashboard.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// LogConfig configures log output. An empty File logs to stderr.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SetDefaults registers the default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyServerURL, "http://localhost:1337")
	v.SetDefault(KeyRemoteTimeout, 10*time.Second)
	v.SetDefault(KeyReconcileTimeout, 30*time.Second)
	v.SetDefault(KeyBreakerEnabled, true)
	v.SetDefault(KeyBreakerFailures, 5)
	v.SetDefault(KeyBreakerCooldown, 30*time.Second)
	v.SetDefault(KeyCachePath, filepath.Join(".restaurants", "cache.db"))
	v.SetDefault(KeyRefreshInterval, 5*time.Minute)
	v.SetDefault(KeyDrainInterval, 30*time.Second)
	v.SetDefault(KeyDedupeFavorites, false)
	v.SetDefault(KeyDashboardPort, 8080)
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSizeMB, 10)
	v.SetDefault(KeyLogMaxBackups, 3)
	v.SetDefault(KeyLogMaxAgeDays, 28)
}

// New returns a viper instance with defaults, environment overrides and the
// config search path set up. If file is not empty it is used instead of the
// search path.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		return v
	}

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "restaurant-sync"))
	}
	return v
}

// Read loads the config file into v. A missing file on the search path is
// not an error; a missing explicit file is.
func Read(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Decode builds and validates a Config from v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Load is New, Read and Decode in one step.
func Load(file string) (*Config, *viper.Viper, error) {
	v := New(file)
	if err := Read(v); err != nil {
		return nil, nil, err
	}
	cfg, err := Decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL (got %q)", KeyServerURL, c.Server.URL)
	}
	if c.Remote.Timeout < 0 {
		return fmt.Errorf("%s cannot be negative", KeyRemoteTimeout)
	}
	if c.Remote.ReconcileTimeout <= 0 {
		return fmt.Errorf("%s must be positive", KeyReconcileTimeout)
	}
	if c.Remote.Breaker.Enabled {
		if c.Remote.Breaker.Failures == 0 {
			return fmt.Errorf("%s must be at least 1", KeyBreakerFailures)
		}
		if c.Remote.Breaker.Cooldown <= 0 {
			return fmt.Errorf("%s must be positive", KeyBreakerCooldown)
		}
	}
	if c.Cache.Path == "" {
		return fmt.Errorf("%s is required", KeyCachePath)
	}
	if c.Cache.RefreshInterval <= 0 {
		return fmt.Errorf("%s must be positive", KeyRefreshInterval)
	}
	if c.Queue.DrainInterval <= 0 {
		return fmt.Errorf("%s must be positive", KeyDrainInterval)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("%s out of range (got %d)", KeyDashboardPort, c.Dashboard.Port)
	}
	return nil
}
