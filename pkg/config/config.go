package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	// OBS is the local broadcast-control endpoint (obs-websocket v5).
	OBS struct {
		Address     string        `yaml:"address"`
		Password    string        `yaml:"password"`
		DialTimeout time.Duration `yaml:"dial_timeout"`
	} `yaml:"obs"`

	Relays struct {
		Defaults       []string      `yaml:"defaults"`
		PublishTimeout time.Duration `yaml:"publish_timeout"`
		ProbeTimeout   time.Duration `yaml:"probe_timeout"`
		ProbeCacheTTL  time.Duration `yaml:"probe_cache_ttl"`

		// RefreshSchedule is a cron expression; while live the live event is
		// republished on it. Empty disables refreshing.
		RefreshSchedule string `yaml:"refresh_schedule"`

		DialRetry struct {
			Enabled      bool          `yaml:"enabled"`
			MaxAttempts  int           `yaml:"max_attempts"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
		} `yaml:"dial_retry"`

		Breaker struct {
			FailureThreshold int           `yaml:"failure_threshold"`
			SuccessThreshold int           `yaml:"success_threshold"`
			Timeout          time.Duration `yaml:"timeout"`
		} `yaml:"breaker"`
	} `yaml:"relays"`

	Storage struct {
		Dir string `yaml:"dir"`
	} `yaml:"storage"`

	// Backup snapshots the stored configs into Dir on Schedule.
	Backup struct {
		Enabled   bool          `yaml:"enabled"`
		Dir       string        `yaml:"dir"`
		Schedule  string        `yaml:"schedule"`
		Retention time.Duration `yaml:"retention"`
	} `yaml:"backup"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Sync struct {
		Backend    string `yaml:"backend"` // memory | redis
		BufferSize int    `yaml:"buffer_size"`
	} `yaml:"sync"`

	Signal struct {
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongTimeout    time.Duration `yaml:"pong_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		MaxMessageSize int64         `yaml:"max_message_size"`
	} `yaml:"signal"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Auth struct {
		Enabled   bool          `yaml:"enabled"`
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"http"`
	} `yaml:"rate_limiting"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	if c.OBS.Address == "" {
		return fmt.Errorf("obs.address must not be empty")
	}
	if !strings.HasPrefix(c.OBS.Address, "ws://") && !strings.HasPrefix(c.OBS.Address, "wss://") {
		return fmt.Errorf("obs.address must be a ws:// or wss:// url")
	}
	if c.OBS.DialTimeout <= 0 {
		return fmt.Errorf("obs.dial_timeout must be > 0")
	}

	for _, r := range c.Relays.Defaults {
		if !strings.HasPrefix(r, "wss://") {
			return fmt.Errorf("relays.defaults: %q must start with wss://", r)
		}
	}
	if c.Relays.PublishTimeout <= 0 {
		return fmt.Errorf("relays.publish_timeout must be > 0")
	}
	if c.Relays.ProbeTimeout <= 0 {
		return fmt.Errorf("relays.probe_timeout must be > 0")
	}
	if c.Relays.ProbeCacheTTL < 0 {
		return fmt.Errorf("relays.probe_cache_ttl must be >= 0")
	}
	if c.Relays.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.Relays.RefreshSchedule); err != nil {
			return fmt.Errorf("relays.refresh_schedule: %w", err)
		}
	}
	if c.Relays.DialRetry.Enabled && c.Relays.DialRetry.MaxAttempts < 0 {
		return fmt.Errorf("relays.dial_retry.max_attempts must be >= 0")
	}
	if c.Relays.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("relays.breaker.failure_threshold must be > 0")
	}
	if c.Relays.Breaker.Timeout <= 0 {
		return fmt.Errorf("relays.breaker.timeout must be > 0")
	}

	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir must not be empty")
	}

	if c.Backup.Enabled {
		if c.Backup.Dir == "" {
			return fmt.Errorf("backup.dir must not be empty when backup.enabled=true")
		}
		if c.Backup.Schedule != "" {
			if _, err := cron.ParseStandard(c.Backup.Schedule); err != nil {
				return fmt.Errorf("backup.schedule: %w", err)
			}
		}
		if c.Backup.Retention < 0 {
			return fmt.Errorf("backup.retention must be >= 0")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	switch c.Sync.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("sync.backend=redis requires redis.enabled=true")
		}
	default:
		return fmt.Errorf("sync.backend must be memory or redis, got %q", c.Sync.Backend)
	}
	if c.Sync.BufferSize <= 0 {
		return fmt.Errorf("sync.buffer_size must be > 0")
	}

	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be greater than signal.ping_interval")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret must not be empty when auth.enabled=true")
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("auth.token_ttl must be > 0")
		}
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = "127.0.0.1:8090"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second

	// obs-websocket ships without a password in the default local setup
	cfg.OBS.Address = "ws://127.0.0.1:4455"
	cfg.OBS.DialTimeout = 5 * time.Second

	cfg.Relays.Defaults = []string{"wss://relay.damus.io", "wss://nos.lol"}
	cfg.Relays.PublishTimeout = 10 * time.Second
	cfg.Relays.ProbeTimeout = 3 * time.Second
	cfg.Relays.ProbeCacheTTL = 10 * time.Second
	cfg.Relays.RefreshSchedule = "@every 30m"
	cfg.Relays.DialRetry.Enabled = false
	cfg.Relays.DialRetry.MaxAttempts = 2
	cfg.Relays.DialRetry.InitialDelay = 250 * time.Millisecond
	cfg.Relays.DialRetry.MaxDelay = 2 * time.Second
	cfg.Relays.Breaker.FailureThreshold = 3
	cfg.Relays.Breaker.SuccessThreshold = 1
	cfg.Relays.Breaker.Timeout = time.Minute

	cfg.Storage.Dir = "./data"

	cfg.Backup.Enabled = false
	cfg.Backup.Dir = "./data/backups"
	cfg.Backup.Schedule = "@daily"
	cfg.Backup.Retention = 7 * 24 * time.Hour

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Sync.Backend = "memory"
	cfg.Sync.BufferSize = 32

	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.MaxMessageSize = 64 * 1024

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Auth.Enabled = false
	cfg.Auth.TokenTTL = 30 * 24 * time.Hour

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 20
	cfg.RateLimiting.HTTP.Burst = 40
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	cfg.CORS.AllowedOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("LIVEBRIDGE_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("LIVEBRIDGE_OBS_ADDRESS"); addr != "" {
		c.OBS.Address = addr
	}
	if pw := os.Getenv("LIVEBRIDGE_OBS_PASSWORD"); pw != "" {
		c.OBS.Password = pw
	}
	if relays := os.Getenv("LIVEBRIDGE_RELAYS"); relays != "" {
		var list []string
		for _, r := range strings.Split(relays, ",") {
			if r = strings.TrimSpace(r); r != "" {
				list = append(list, r)
			}
		}
		c.Relays.Defaults = list
	}
	if dir := os.Getenv("LIVEBRIDGE_STORAGE_DIR"); dir != "" {
		c.Storage.Dir = dir
	}
	if level := os.Getenv("LIVEBRIDGE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("LIVEBRIDGE_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
}
