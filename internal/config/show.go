package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// view mirrors Config with durations spelled the way they are written in
// the config file.
type view struct {
	Server struct {
		URL string `yaml:"url"`
	} `yaml:"server"`
	Remote struct {
		Timeout          string `yaml:"timeout"`
		ReconcileTimeout string `yaml:"reconcile_timeout"`
		Breaker          struct {
			Enabled  bool   `yaml:"enabled"`
			Failures uint32 `yaml:"failures"`
			Cooldown string `yaml:"cooldown"`
		} `yaml:"breaker"`
	} `yaml:"remote"`
	Cache struct {
		Path            string `yaml:"path"`
		RefreshInterval string `yaml:"refresh_interval"`
	} `yaml:"cache"`
	Queue struct {
		DrainInterval   string `yaml:"drain_interval"`
		DedupeFavorites bool   `yaml:"dedupe_favorites"`
	} `yaml:"queue"`
	Dashboard struct {
		Port int `yaml:"port"`
	} `yaml:"dashboard"`
	Log struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
}

// YAML renders the effective configuration in config file syntax.
func (c *Config) YAML() ([]byte, error) {
	var v view
	v.Server.URL = c.Server.URL
	v.Remote.Timeout = c.Remote.Timeout.String()
	v.Remote.ReconcileTimeout = c.Remote.ReconcileTimeout.String()
	v.Remote.Breaker.Enabled = c.Remote.Breaker.Enabled
	v.Remote.Breaker.Failures = c.Remote.Breaker.Failures
	v.Remote.Breaker.Cooldown = c.Remote.Breaker.Cooldown.String()
	v.Cache.Path = c.Cache.Path
	v.Cache.RefreshInterval = c.Cache.RefreshInterval.String()
	v.Queue.DrainInterval = c.Queue.DrainInterval.String()
	v.Queue.DedupeFavorites = c.Queue.DedupeFavorites
	v.Dashboard.Port = c.Dashboard.Port
	v.Log.File = c.Log.File
	v.Log.MaxSizeMB = c.Log.MaxSizeMB
	v.Log.MaxBackups = c.Log.MaxBackups
	v.Log.MaxAgeDays = c.Log.MaxAgeDays

	out, err := yaml.Marshal(&v)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return out, nil
}
