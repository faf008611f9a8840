package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the weft daemon
type Config struct {
	// Server configuration
	HTTPPort int    `env:"WEFT_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"WEFT_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Backend selection: memory keeps everything in-process, redis shares
	// events and run state across daemons.
	EventBackend   string `env:"WEFT_EVENT_BACKEND" envDefault:"memory"`
	StorageBackend string `env:"WEFT_STORAGE_BACKEND" envDefault:"memory"`

	// Redis configuration
	Redis RedisConfig

	// Scheduler configuration
	Scheduler SchedulerConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// Consumer group identity for the event streams
	ConsumerGroup string `env:"REDIS_CONSUMER_GROUP" envDefault:"weft-workers"`
	ConsumerName  string `env:"REDIS_CONSUMER_NAME" envDefault:"weftd"`

	// Run snapshot retention
	RunTTL time.Duration `env:"REDIS_RUN_TTL" envDefault:"24h"`
}

// SchedulerConfig holds per-run scheduler defaults
type SchedulerConfig struct {
	MaxConcurrent       int           `env:"SCHEDULER_MAX_CONCURRENT" envDefault:"5"`
	MaxRetries          int           `env:"SCHEDULER_MAX_RETRIES" envDefault:"3"`
	PollInterval        time.Duration `env:"SCHEDULER_POLL_INTERVAL" envDefault:"25ms"`
	JumpGuard           int           `env:"SCHEDULER_JUMP_GUARD" envDefault:"100"`
	ResourceWait        time.Duration `env:"SCHEDULER_RESOURCE_WAIT" envDefault:"0"`
	HealthCheckInterval time.Duration `env:"SCHEDULER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	RunTimeout      time.Duration `env:"TIMEOUT_RUN" envDefault:"3600s"` // 1 hour
	CancelGrace     time.Duration `env:"TIMEOUT_CANCEL_GRACE" envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate backends
	if c.EventBackend != "memory" && c.EventBackend != "redis" {
		return fmt.Errorf("invalid event backend: %s (must be memory or redis)", c.EventBackend)
	}
	if c.StorageBackend != "memory" && c.StorageBackend != "redis" {
		return fmt.Errorf("invalid storage backend: %s (must be memory or redis)", c.StorageBackend)
	}
	if c.NeedsRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required for redis backends")
	}

	// Validate scheduler config
	if c.Scheduler.MaxConcurrent < 1 {
		return fmt.Errorf("scheduler max concurrent must be at least 1")
	}
	if c.Scheduler.MaxRetries < 0 {
		return fmt.Errorf("scheduler max retries must not be negative")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// NeedsRedis reports whether any configured backend requires a Redis
// connection.
func (c *Config) NeedsRedis() bool {
	return c.EventBackend == "redis" || c.StorageBackend == "redis"
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
