package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	FanoutLocal = "local"
	FanoutRedis = "redis"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	// RateLimitPerMinute caps API requests per client IP. Zero disables it.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`

	Rooms   RoomsConfig   `mapstructure:"rooms" yaml:"rooms"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Fanout  FanoutConfig  `mapstructure:"fanout" yaml:"fanout"`
}

// RoomsConfig bounds room creation.
type RoomsConfig struct {
	MaxCapacity int `mapstructure:"max_capacity" yaml:"max_capacity"`
	CodeRetries int `mapstructure:"code_retries" yaml:"code_retries"`
}

// SessionConfig controls how WebSocket sessions follow their room.
type SessionConfig struct {
	Mode            string        `mapstructure:"mode" yaml:"mode"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff" yaml:"max_retry_backoff"`
}

// FanoutConfig selects how room updates reach other server processes.
type FanoutConfig struct {
	Backend       string `mapstructure:"backend" yaml:"backend"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	ChannelPrefix string `mapstructure:"channel_prefix" yaml:"channel_prefix"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		DatabasePath:       "fitroom.db",
		JWTSecret:          "change-me-in-production",
		JWTIssuer:          "fitroom",
		JWTAudience:        "fitroom-clients",
		TokenTTL:           24 * time.Hour,
		RateLimitPerMinute: 120,
		Rooms: RoomsConfig{
			MaxCapacity: 9,
			CodeRetries: 8,
		},
		Session: SessionConfig{
			Mode:            "push",
			PollInterval:    5 * time.Second,
			RetryBackoff:    time.Second,
			MaxRetryBackoff: 30 * time.Second,
		},
		Fanout: FanoutConfig{
			Backend:       FanoutLocal,
			RedisAddr:     "localhost:6379",
			ChannelPrefix: "fitroom:",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the fields exposed as command line flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.Fanout.Backend != "" {
		c.Fanout.Backend = other.Fanout.Backend
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token_ttl must be positive"))
	}
	if c.Rooms.MaxCapacity < 1 {
		errs = append(errs, errors.New("rooms.max_capacity must be at least 1"))
	}
	if c.Rooms.CodeRetries < 1 {
		errs = append(errs, errors.New("rooms.code_retries must be at least 1"))
	}
	switch c.Session.Mode {
	case "", "push", "poll":
	default:
		errs = append(errs, fmt.Errorf("session.mode %q must be push or poll", c.Session.Mode))
	}
	switch c.Fanout.Backend {
	case FanoutLocal:
	case FanoutRedis:
		if c.Fanout.RedisAddr == "" {
			errs = append(errs, errors.New("fanout.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("fanout.backend %q must be %s or %s", c.Fanout.Backend, FanoutLocal, FanoutRedis))
	}
	return errors.Join(errs...)
}
