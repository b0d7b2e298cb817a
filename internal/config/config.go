// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// AppConfig holds all application configuration.
// It is instantiated by NewConfig() and passed to components that need it (dependency injection).
type AppConfig struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Templates TemplatesConfig `mapstructure:"templates"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// DatabaseConfig holds all database configuration.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// LogConfig holds comprehensive logging configuration
type LogConfig struct {
	Level    string            `mapstructure:"level"`
	Format   string            `mapstructure:"format"`
	Output   []LogOutputConfig `mapstructure:"output"`
	Levels   map[string]string `mapstructure:"levels"`
	Context  LogContextConfig  `mapstructure:"context"`
	Sampling LogSamplingConfig `mapstructure:"sampling"`
}

// LogOutputConfig defines where logs are written
type LogOutputConfig struct {
	Type    string          `mapstructure:"type"` // "file", "console"
	Enabled bool            `mapstructure:"enabled"`
	Path    string          `mapstructure:"path"`
	Rotate  LogRotateConfig `mapstructure:"rotate"`
}

// LogRotateConfig defines log rotation settings
type LogRotateConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// LogContextConfig defines what context to include in logs
type LogContextConfig struct {
	IncludeCaller     bool   `mapstructure:"include_caller"`
	IncludeTimestamp  bool   `mapstructure:"include_timestamp"`
	IncludeStackTrace string `mapstructure:"include_stack_trace"`
}

// LogSamplingConfig defines log sampling settings
type LogSamplingConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Initial    uint32        `mapstructure:"initial"`
	Thereafter uint32        `mapstructure:"thereafter"`
	Tick       time.Duration `mapstructure:"tick"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"` // Empty = allow all (development); set for production
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
}

// WebhookConfig controls outbound calls to agent webhooks.
type WebhookConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	// Policies are matched in order against the agent's execution URL host.
	// The first match supplies the agent's timeout and fallback template at
	// registration time.
	Policies []HostPolicyConfig `mapstructure:"policies"`
}

// HostPolicyConfig maps a host pattern to an execution policy.
type HostPolicyConfig struct {
	Pattern          string        `mapstructure:"pattern"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FallbackTemplate string        `mapstructure:"fallback_template"`
}

// ProvidersConfig points at an optional provider adapter table. When File is
// empty the built-in table is used.
type ProvidersConfig struct {
	File string `mapstructure:"file"`
}

// TemplatesConfig points at an optional template registry file that extends
// the built-in generators.
type TemplatesConfig struct {
	File string `mapstructure:"file"`
}

// AgentsConfig holds agent catalogue settings.
type AgentsConfig struct {
	SeedFile  string `mapstructure:"seed_file"`
	CacheSize int    `mapstructure:"cache_size"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Exporter    string `mapstructure:"exporter"` // "otlp", "stdout", "none"
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// NewConfig creates a new AppConfig by reading from a file, environment variables,
// and applying defaults.
func NewConfig(configPath string) (*AppConfig, error) {
	cfg := defaultConfig()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/agentmarket/")
		v.AddConfigPath("$HOME/.agentmarket")
	}

	v.SetEnvPrefix("AGENTMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the config file. It's okay if it doesn't exist.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.expandPaths()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// defaultConfig returns an AppConfig with default values.
func defaultConfig() AppConfig {
	return AppConfig{
		Database: DatabaseConfig{
			Driver:   "sqlite",
			Database: "agentmarket.db",
			Host:     "localhost",
			Port:     5432,
			SSLMode:  "disable",
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "console",
			Output: []LogOutputConfig{
				{
					Type:    "file",
					Enabled: true,
					Path:    "./logs/agentmarket.log",
					Rotate: LogRotateConfig{
						MaxSizeMB:  100,
						MaxBackups: 7,
						MaxAgeDays: 30,
						Compress:   true,
					},
				},
				{
					Type:    "console",
					Enabled: true,
				},
			},
			Levels: map[string]string{
				"api":         "INFO",
				"database":    "INFO",
				"marketplace": "INFO",
				"webhook":     "INFO",
				"normalize":   "INFO",
				"cli":         "WARN",
			},
			Context: LogContextConfig{
				IncludeCaller:     false,
				IncludeTimestamp:  true,
				IncludeStackTrace: "ERROR",
			},
			Sampling: LogSamplingConfig{
				Enabled:    false,
				Initial:    100,
				Thereafter: 100,
				Tick:       time.Second,
			},
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         3001,
			MaxBodyBytes: 10 << 20,
		},
		Webhook: WebhookConfig{
			UserAgent:      "AI-Agent-Marketplace/1.0",
			DefaultTimeout: 60 * time.Second,
			Policies: []HostPolicyConfig{
				{
					Pattern:          "lyzr.ai",
					Timeout:          15 * time.Second,
					FallbackTemplate: "grammar_correction",
				},
			},
		},
		Agents: AgentsConfig{
			CacheSize: 256,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    "none",
			Endpoint:    "localhost:4318",
			Insecure:    true,
			ServiceName: "agentmarket",
		},
	}
}

// expandPaths expands ~ and environment variables in path configuration values
func (c *AppConfig) expandPaths() {
	c.Providers.File = expandPath(c.Providers.File)
	c.Templates.File = expandPath(c.Templates.File)
	c.Agents.SeedFile = expandPath(c.Agents.SeedFile)
	for i := range c.Log.Output {
		c.Log.Output[i].Path = expandPath(c.Log.Output[i].Path)
	}
}

// expandPath expands ~ to home directory and environment variables
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[1:])
		}
	}

	return os.ExpandEnv(path)
}

// validate checks if the configuration is valid.
func (c *AppConfig) validate() error {
	if c.Database.Driver == "" {
		return errors.New("database driver is required")
	}

	validLogLevels := map[string]bool{
		"TRACE": true, "DEBUG": true, "INFO": true, "WARN": true, "ERROR": true, "FATAL": true, "PANIC": true,
	}
	if !validLogLevels[strings.ToUpper(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Webhook.DefaultTimeout <= 0 {
		return fmt.Errorf("webhook.default_timeout must be positive, got: %s", c.Webhook.DefaultTimeout)
	}
	if c.Webhook.UserAgent == "" {
		return errors.New("webhook.user_agent is required")
	}
	for i, p := range c.Webhook.Policies {
		if p.Pattern == "" {
			return fmt.Errorf("webhook.policies[%d].pattern is required", i)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("webhook.policies[%d].timeout must not be negative", i)
		}
	}

	switch c.Tracing.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be one of none, stdout, otlp, got: %s", c.Tracing.Exporter)
	}

	return nil
}

// PolicyFor returns the configured timeout and fallback template for an
// execution URL. Unmatched hosts get the default timeout and no fallback.
func (wc *WebhookConfig) PolicyFor(host string) (time.Duration, string) {
	host = strings.ToLower(host)
	for _, p := range wc.Policies {
		if strings.Contains(host, strings.ToLower(p.Pattern)) {
			timeout := p.Timeout
			if timeout == 0 {
				timeout = wc.DefaultTimeout
			}
			return timeout, p.FallbackTemplate
		}
	}
	return wc.DefaultTimeout, ""
}

// GetDSN returns the database connection string.
func (dc *DatabaseConfig) GetDSN() string {
	switch dc.Driver {
	case "sqlite":
		dsn := dc.Database
		if dsn == ":memory:" {
			dsn = "file::memory:?cache=shared"
		}
		return dsn
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			dc.Host, dc.Port, dc.Username, dc.Password, dc.Database, dc.SSLMode)
	default:
		return dc.Database
	}
}
