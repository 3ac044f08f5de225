// Package config resolves goshift configuration from defaults, an optional
// YAML file, and GOSHIFT_* environment variables, in that order of
// precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration shared by the server and worker binaries.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Roster     RosterConfig     `yaml:"roster"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
}

// ServerConfig holds configuration for the goshift API server.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`             // Listen address (default ":8080")
	LogLevel        string        `yaml:"log_level"`        // debug, info, warn, error
	LogFormat       string        `yaml:"log_format"`       // text, json, console
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // HTTP drain budget on SIGTERM
}

// StoreConfig selects and configures the job registry backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`  // sqlite, postgres
	DBPath string `yaml:"db_path"` // SQLite database path (":memory:" for testing)
	DSN    string `yaml:"dsn"`     // PostgreSQL connection string
}

// RosterConfig configures the staff data service client. BaseURL has no
// default; binaries that dispatch jobs refuse to start without one.
type RosterConfig struct {
	BaseURL          string        `yaml:"base_url"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
	HealthInterval   time.Duration `yaml:"health_interval"`
}

// DispatcherConfig configures the background job dispatcher.
type DispatcherConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Workers         int           `yaml:"workers"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxIdleInterval time.Duration `yaml:"max_idle_interval"`
	StaleClaimAfter time.Duration `yaml:"stale_claim_after"`
	RequeueInterval time.Duration `yaml:"requeue_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the full default configuration: an embedded dispatcher
// over a local SQLite registry.
func Default() Config {
	return Config{
		Server: DefaultServerConfig(),
		Store: StoreConfig{
			Driver: "sqlite",
			DBPath: "goshift.db",
		},
		Roster: RosterConfig{
			Timeout:          10 * time.Second,
			MaxRetries:       3,
			RetryDelay:       500 * time.Millisecond,
			CacheTTL:         5 * time.Minute,
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
			HealthInterval:   10 * time.Second,
		},
		Dispatcher: DispatcherConfig{
			Enabled:         true,
			Workers:         2,
			PollInterval:    time.Second,
			MaxIdleInterval: 30 * time.Second,
			StaleClaimAfter: 10 * time.Minute,
			RequeueInterval: time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// DefaultServerConfig returns sensible server defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Load resolves the configuration. path may be empty, in which case only
// defaults and environment variables apply; a non-empty path must name a
// readable YAML file. Load does not validate: callers apply their flag
// overrides first and then call Validate on the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays GOSHIFT_* environment variables onto the config.
func (c *Config) applyEnv() {
	envString("GOSHIFT_ADDR", &c.Server.Addr)
	envString("GOSHIFT_LOG_LEVEL", &c.Server.LogLevel)
	envString("GOSHIFT_LOG_FORMAT", &c.Server.LogFormat)

	envString("GOSHIFT_STORE_DRIVER", &c.Store.Driver)
	envString("GOSHIFT_DB_PATH", &c.Store.DBPath)
	envString("GOSHIFT_DB_DSN", &c.Store.DSN)

	envString("GOSHIFT_ROSTER_URL", &c.Roster.BaseURL)
	envDuration("GOSHIFT_ROSTER_TIMEOUT", &c.Roster.Timeout)
	envDuration("GOSHIFT_ROSTER_CACHE_TTL", &c.Roster.CacheTTL)

	envBool("GOSHIFT_DISPATCHER_ENABLED", &c.Dispatcher.Enabled)
	envInt("GOSHIFT_DISPATCHER_WORKERS", &c.Dispatcher.Workers)
	envDuration("GOSHIFT_DISPATCHER_POLL_INTERVAL", &c.Dispatcher.PollInterval)
	envDuration("GOSHIFT_DISPATCHER_STALE_AFTER", &c.Dispatcher.StaleClaimAfter)
}

// Validate checks the configuration for values that cannot work at runtime.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.DBPath == "" {
			return fmt.Errorf("store.db_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q (want sqlite or postgres)", c.Store.Driver)
	}

	if c.Dispatcher.Workers <= 0 {
		return fmt.Errorf("dispatcher.workers must be positive, got %d", c.Dispatcher.Workers)
	}
	if c.Dispatcher.PollInterval <= 0 {
		return fmt.Errorf("dispatcher.poll_interval must be positive, got %s", c.Dispatcher.PollInterval)
	}
	if c.Dispatcher.MaxIdleInterval < c.Dispatcher.PollInterval {
		return fmt.Errorf("dispatcher.max_idle_interval %s is below poll_interval %s",
			c.Dispatcher.MaxIdleInterval, c.Dispatcher.PollInterval)
	}
	if c.Dispatcher.StaleClaimAfter <= 0 {
		return fmt.Errorf("dispatcher.stale_claim_after must be positive, got %s", c.Dispatcher.StaleClaimAfter)
	}
	if c.Dispatcher.RequeueInterval <= 0 {
		return fmt.Errorf("dispatcher.requeue_interval must be positive, got %s", c.Dispatcher.RequeueInterval)
	}
	if c.Roster.MaxRetries < 0 {
		return fmt.Errorf("roster.max_retries must not be negative, got %d", c.Roster.MaxRetries)
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
