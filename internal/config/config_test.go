package config

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restaurants.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	v := New("")
	cfg, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	if cfg.Server.URL != "http://localhost:1337" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Remote.Timeout != 10*time.Second {
		t.Errorf("Remote.Timeout = %v, want 10s", cfg.Remote.Timeout)
	}
	if !cfg.Remote.Breaker.Enabled || cfg.Remote.Breaker.Failures != 5 {
		t.Errorf("Remote.Breaker = %+v", cfg.Remote.Breaker)
	}
	if cfg.Queue.DrainInterval != 30*time.Second {
		t.Errorf("Queue.DrainInterval = %v, want 30s", cfg.Queue.DrainInterval)
	}
	if cfg.Queue.DedupeFavorites {
		t.Error("Queue.DedupeFavorites should default to false")
	}
	if cfg.Cache.RefreshInterval != 5*time.Minute {
		t.Errorf("Cache.RefreshInterval = %v, want 5m", cfg.Cache.RefreshInterval)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("Dashboard.Port = %d, want 8080", cfg.Dashboard.Port)
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfigFile(t, `
server:
  url: http://restaurants.test:8000
remote:
  timeout: 3s
  breaker:
    enabled: false
queue:
  drain_interval: 2m
  dedupe_favorites: true
cache:
  path: /tmp/restaurants-cache.db
`)

	cfg, v, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if v.ConfigFileUsed() != path {
		t.Errorf("ConfigFileUsed() = %q, want %q", v.ConfigFileUsed(), path)
	}
	if cfg.Server.URL != "http://restaurants.test:8000" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Remote.Timeout != 3*time.Second {
		t.Errorf("Remote.Timeout = %v, want 3s", cfg.Remote.Timeout)
	}
	if cfg.Remote.Breaker.Enabled {
		t.Error("Remote.Breaker.Enabled should be false")
	}
	if cfg.Queue.DrainInterval != 2*time.Minute || !cfg.Queue.DedupeFavorites {
		t.Errorf("Queue = %+v", cfg.Queue)
	}
	if cfg.Cache.Path != "/tmp/restaurants-cache.db" {
		t.Errorf("Cache.Path = %q", cfg.Cache.Path)
	}
	// Untouched keys keep their defaults.
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("Dashboard.Port = %d, want default 8080", cfg.Dashboard.Port)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "server:\n  url: http://from-file:1337\n")
	t.Setenv("RESTAURANTS_SERVER_URL", "http://from-env:1337")
	t.Setenv("RESTAURANTS_QUEUE_DRAIN_INTERVAL", "45s")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.URL != "http://from-env:1337" {
		t.Errorf("Server.URL = %q, want env value", cfg.Server.URL)
	}
	if cfg.Queue.DrainInterval != 45*time.Second {
		t.Errorf("Queue.DrainInterval = %v, want 45s", cfg.Queue.DrainInterval)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Decode(New(""))
		if err != nil {
			t.Fatalf("Decode() failed: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad scheme", func(c *Config) { c.Server.URL = "ftp://example.com" }},
		{"no host", func(c *Config) { c.Server.URL = "http://" }},
		{"zero drain interval", func(c *Config) { c.Queue.DrainInterval = 0 }},
		{"breaker without failures", func(c *Config) { c.Remote.Breaker.Failures = 0 }},
		{"empty cache path", func(c *Config) { c.Cache.Path = "" }},
		{"zero refresh interval", func(c *Config) { c.Cache.RefreshInterval = 0 }},
		{"port out of range", func(c *Config) { c.Dashboard.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestYAML(t *testing.T) {
	cfg, err := Decode(New(""))
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML() failed: %v", err)
	}
	for _, want := range []string{
		"url: http://localhost:1337",
		"drain_interval: 30s",
		"timeout: 10s",
		"dedupe_favorites: false",
		"refresh_interval: 5m0s",
	} {
		if !strings.Contains(string(out), want) {
			t.Errorf("YAML() output missing %q:\n%s", want, out)
		}
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfigFile(t, "queue:\n  drain_interval: 10s\n")

	_, v, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	changed := make(chan *Config, 4)
	Watch(v, log.New(io.Discard, "", 0), func(cfg *Config) { changed <- cfg })

	// Let the watcher register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("queue:\n  drain_interval: 5s\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Queue.DrainInterval == 5*time.Second {
				return
			}
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}
