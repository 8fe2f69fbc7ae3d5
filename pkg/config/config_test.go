package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "obs address must use a websocket scheme",
			mutate: func(c *Config) { c.OBS.Address = "http://127.0.0.1:4455" },
		},
		{
			name:   "default relays must be secure websockets",
			mutate: func(c *Config) { c.Relays.Defaults = []string{"ws://relay.example.com"} },
		},
		{
			name:   "publish timeout must be > 0",
			mutate: func(c *Config) { c.Relays.PublishTimeout = 0 },
		},
		{
			name:   "breaker threshold must be > 0",
			mutate: func(c *Config) { c.Relays.Breaker.FailureThreshold = 0 },
		},
		{
			name:   "unknown sync backend",
			mutate: func(c *Config) { c.Sync.Backend = "kafka" },
		},
		{
			name: "redis sync backend requires redis",
			mutate: func(c *Config) {
				c.Sync.Backend = "redis"
				c.Redis.Enabled = false
			},
		},
		{
			name: "pong timeout must exceed ping interval",
			mutate: func(c *Config) {
				c.Signal.PingInterval = time.Minute
				c.Signal.PongTimeout = time.Second
			},
		},
		{
			name: "auth needs a secret",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.JWTSecret = ""
			},
		},
		{
			name: "http rps must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.HTTP.RequestsPerSecond = 0
			},
		},
		{
			name:   "refresh schedule must parse",
			mutate: func(c *Config) { c.Relays.RefreshSchedule = "every half hour" },
		},
		{
			name:   "storage dir required",
			mutate: func(c *Config) { c.Storage.Dir = "" },
		},
		{
			name: "backup schedule must parse",
			mutate: func(c *Config) {
				c.Backup.Enabled = true
				c.Backup.Schedule = "nightly"
			},
		},
		{
			name: "backup dir required when enabled",
			mutate: func(c *Config) {
				c.Backup.Enabled = true
				c.Backup.Dir = ""
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OBS.Address != "ws://127.0.0.1:4455" {
		t.Fatalf("expected default obs address, got %q", cfg.OBS.Address)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
obs:
  address: "ws://192.168.1.244:4455"
relays:
  defaults:
    - "wss://relay.one"
storage:
  dir: "/tmp/livebridge"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("LIVEBRIDGE_RELAYS", "wss://a.example, wss://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OBS.Address != "ws://192.168.1.244:4455" {
		t.Errorf("obs address = %q", cfg.OBS.Address)
	}
	if len(cfg.Relays.Defaults) != 2 || cfg.Relays.Defaults[1] != "wss://b.example" {
		t.Errorf("env override not applied to relays: %v", cfg.Relays.Defaults)
	}
	if cfg.Storage.Dir != "/tmp/livebridge" {
		t.Errorf("storage dir = %q", cfg.Storage.Dir)
	}
	// untouched sections keep their defaults
	if cfg.Relays.PublishTimeout != 10*time.Second {
		t.Errorf("publish timeout = %v", cfg.Relays.PublishTimeout)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("obs: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
