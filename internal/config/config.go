package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the torale engine
type Config struct {
	Redis    RedisConfig
	Engine   EngineConfig
	Agent    AgentConfig
	Notifier NotifierConfig
	Metrics  MetricsConfig
	Logging  LoggingConfig
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `env:"TORALE_REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"TORALE_REDIS_PASSWORD"`
	DB       int    `env:"TORALE_REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"TORALE_REDIS_POOL_SIZE" envDefault:"10"`
}

// EngineConfig holds scheduler and execution settings
type EngineConfig struct {
	// How often the clock loop evaluates due tasks
	TickInterval time.Duration `env:"TORALE_TICK_INTERVAL" envDefault:"5s"`

	// Maximum due tasks triggered per tick
	TickBatchSize int `env:"TORALE_TICK_BATCH_SIZE" envDefault:"128"`

	// How often the reaper sweeps for abandoned executions
	ReapInterval time.Duration `env:"TORALE_REAP_INTERVAL" envDefault:"1m"`

	// Executions non-terminal for longer than this are treated as
	// abandoned, failed with a timeout error, and released
	AbandonAfter time.Duration `env:"TORALE_ABANDON_AFTER" envDefault:"10m"`

	// Floor applied to agent next-run hints so a task cannot be turned
	// into a busy loop
	MinRunInterval time.Duration `env:"TORALE_MIN_RUN_INTERVAL" envDefault:"30s"`
}

// AgentConfig holds settings for the external reasoning/search service
type AgentConfig struct {
	BaseURL string        `env:"TORALE_AGENT_URL" envDefault:"http://localhost:9090"`
	Token   string        `env:"TORALE_AGENT_TOKEN"`
	Timeout time.Duration `env:"TORALE_AGENT_TIMEOUT" envDefault:"60s"`
}

// NotifierConfig holds settings for outbound notification delivery
type NotifierConfig struct {
	WebhookURL string        `env:"TORALE_WEBHOOK_URL"`
	Timeout    time.Duration `env:"TORALE_WEBHOOK_TIMEOUT" envDefault:"10s"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled    bool   `env:"TORALE_METRICS_ENABLED" envDefault:"true"`
	ListenAddr string `env:"TORALE_METRICS_ADDR" envDefault:":9100"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `env:"TORALE_LOG_LEVEL" envDefault:"info"`
	Format string `env:"TORALE_LOG_FORMAT" envDefault:"text"` // text or json
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if c.Engine.TickBatchSize < 1 {
		return fmt.Errorf("tick batch size must be at least 1")
	}
	if c.Agent.Timeout <= 0 {
		return fmt.Errorf("agent timeout must be positive")
	}
	if c.Engine.AbandonAfter < c.Agent.Timeout {
		return fmt.Errorf("abandon-after (%v) must not be shorter than the agent timeout (%v)",
			c.Engine.AbandonAfter, c.Agent.Timeout)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("log format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
