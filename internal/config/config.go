// Package config provides configuration management for CheckPulse.
//
// Configuration is loaded in the following order (later sources override
// earlier ones):
//  1. Default values (hardcoded)
//  2. Configuration files (./config.yaml, ./configs/config.yaml,
//     ~/.checkpulse/config.yaml, /etc/checkpulse/config.yaml)
//  3. .env files
//  4. Environment variables (CP_ prefix)
//
// Environment variables use underscores for nested keys:
//   - CP_SERVER_PORT=8080
//   - CP_STORAGE_PATH=/var/lib/checkpulse/checkpulse.db
//   - CP_WORKERS_COUNT=5
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure for CheckPulse.
type Config struct {
	// Server contains HTTP server configuration
	Server ServerConfig `mapstructure:"server"`

	// Storage contains database settings
	Storage StorageConfig `mapstructure:"storage"`

	// Workers contains local execution pool settings
	Workers WorkersConfig `mapstructure:"workers"`

	// Checks contains probe execution settings
	Checks ChecksConfig `mapstructure:"checks"`

	// Broadcast contains status broadcast settings
	Broadcast BroadcastConfig `mapstructure:"broadcast"`

	// Security contains rate limiting and admin access settings
	Security SecurityConfig `mapstructure:"security"`

	// SMTP contains outbound mail settings for agent key delivery
	SMTP SMTPConfig `mapstructure:"smtp"`

	// Agent contains settings for running this binary as a remote agent
	Agent AgentConfig `mapstructure:"agent"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the server bind address
	Host string `mapstructure:"host"`

	// Port is the server listen port
	Port int `mapstructure:"port"`

	// ReadTimeout is the maximum duration for reading requests
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration for writing responses
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ShutdownTimeout is the maximum duration for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Debug enables debug logging
	Debug bool `mapstructure:"debug"`
}

// StorageConfig contains database settings.
type StorageConfig struct {
	// Path is the filesystem location of the bbolt database file
	Path string `mapstructure:"path"`
}

// WorkersConfig contains local execution pool settings.
type WorkersConfig struct {
	// Count is the number of queue-draining workers
	Count int `mapstructure:"count"`
}

// ChecksConfig contains probe execution settings.
type ChecksConfig struct {
	// Timeout bounds every individual probe
	Timeout time.Duration `mapstructure:"timeout"`
}

// BroadcastConfig contains status broadcast settings.
type BroadcastConfig struct {
	// Interval is how often the online agent count is pushed to
	// status WebSocket subscribers
	Interval time.Duration `mapstructure:"interval"`
}

// SecurityConfig contains rate limiting and admin access settings.
type SecurityConfig struct {
	// RateLimit is the maximum requests per second per client
	RateLimit int `mapstructure:"rate_limit"`

	// AllowedOrigins are the CORS allowed origins
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AdminToken guards the agent administration endpoints. Empty
	// leaves them open, which is only sensible in development.
	AdminToken string `mapstructure:"admin_token"`
}

// SMTPConfig contains outbound mail settings. Mail is optional: an
// empty host disables delivery and agent keys are only returned in the
// API response.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// AgentConfig contains settings for agent mode.
type AgentConfig struct {
	// ServerURL is the WebSocket URL of the CheckPulse server,
	// e.g. ws://localhost:8080/ws/agent
	ServerURL string `mapstructure:"server_url"`

	// APIKey authenticates this agent against the server
	APIKey string `mapstructure:"api_key"`

	// ReconnectMin and ReconnectMax bound the reconnect backoff
	ReconnectMin time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax time.Duration `mapstructure:"reconnect_max"`
}

// Load reads configuration from a file and environment variables.
// If cfgFile is empty, it searches for config.yaml in standard locations.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.checkpulse")
		v.AddConfigPath("/etc/checkpulse")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			if !isFileNotFoundError(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.MergeInConfig() // Ignore error if .env file doesn't exist

	v.SetEnvPrefix("CP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.debug", false)

	v.SetDefault("storage.path", "./checkpulse.db")

	v.SetDefault("workers.count", 5)

	v.SetDefault("checks.timeout", "5s")

	v.SetDefault("broadcast.interval", "1s")

	v.SetDefault("security.rate_limit", 100)
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.admin_token", "")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "checkpulse@localhost")

	v.SetDefault("agent.server_url", "ws://localhost:8080/ws/agent")
	v.SetDefault("agent.reconnect_min", "1s")
	v.SetDefault("agent.reconnect_max", "30s")
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	if cfg.Workers.Count < 1 {
		return fmt.Errorf("invalid worker count: %d", cfg.Workers.Count)
	}

	if cfg.Checks.Timeout <= 0 {
		return fmt.Errorf("invalid check timeout: %s", cfg.Checks.Timeout)
	}

	return nil
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
