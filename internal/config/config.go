package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Twilio     TwilioConfig     `yaml:"twilio"`
	SES        SESConfig        `yaml:"ses"`
	Automation AutomationConfig `yaml:"automation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis configuration for the settings cache and
// distributed locks. Redis is optional; with an empty URL the engine
// falls back to database-only operation.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// TwilioConfig holds Twilio SMS API configuration
type TwilioConfig struct {
	AccountSID     string `yaml:"account_sid"`
	AuthToken      string `yaml:"auth_token"`
	FromNumber     string `yaml:"from_number"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c TwilioConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	FromAddress    string `yaml:"from_address"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AutomationConfig holds scheduler and engine settings
type AutomationConfig struct {
	Enabled                bool `yaml:"enabled"`
	TickIntervalSeconds    int  `yaml:"tick_interval_seconds"`
	BatchSize              int  `yaml:"batch_size"`
	MaxStepAttempts        int  `yaml:"max_step_attempts"`
	DispatchTimeoutSeconds int  `yaml:"dispatch_timeout_seconds"`
}

// TickInterval returns the scheduler tick interval as a duration
func (c AutomationConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// DispatchTimeout returns the per-message dispatch timeout as a duration
func (c AutomationConfig) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutSeconds) * time.Second
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Twilio.BaseURL == "" {
		cfg.Twilio.BaseURL = "https://api.twilio.com"
	}
	if cfg.Twilio.TimeoutSeconds == 0 {
		cfg.Twilio.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.Automation.TickIntervalSeconds == 0 {
		cfg.Automation.TickIntervalSeconds = 60
	}
	if cfg.Automation.BatchSize == 0 {
		cfg.Automation.BatchSize = 100
	}
	if cfg.Automation.MaxStepAttempts == 0 {
		cfg.Automation.MaxStepAttempts = 5
	}
	if cfg.Automation.DispatchTimeoutSeconds == 0 {
		cfg.Automation.DispatchTimeoutSeconds = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Database override (critical for ECS deployment where config.yaml has
	// local defaults)
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
		cfg.Redis.Enabled = true
	}

	// Twilio overrides
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		cfg.Twilio.AccountSID = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		cfg.Twilio.AuthToken = v
	}
	if v := os.Getenv("TWILIO_FROM_NUMBER"); v != "" {
		cfg.Twilio.FromNumber = v
	}

	// SES overrides
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("AWS_SES_FROM_ADDRESS"); v != "" {
		cfg.SES.FromAddress = v
	}

	// Automation overrides
	if v := os.Getenv("AUTOMATION_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Automation.TickIntervalSeconds = n
		}
	}
	if v := os.Getenv("AUTOMATION_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Automation.BatchSize = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}
