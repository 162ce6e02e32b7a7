// Package config loads and validates application configuration from YAML
// files, with environment variables overriding file values field-by-field
// (double-underscore is the nesting separator, e.g. RETRY__MAX_ATTEMPTS).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Service       ServiceConfig       `yaml:"service" envPrefix:"SERVICE__"`
	Retry         RetryConfig         `yaml:"retry" envPrefix:"RETRY__"`
	HTTP          HTTPConfig          `yaml:"http" envPrefix:"HTTP__"`
	Shell         ShellConfig         `yaml:"shell" envPrefix:"SHELL__"`
	Server        ServerConfig        `yaml:"server" envPrefix:"SERVER__"`
	Observability ObservabilityConfig `yaml:"observability" envPrefix:"OBSERVABILITY__"`
}

// ServiceConfig carries the gateway's own identity and the single
// body-size ceiling applied at both validation sites, resolving the
// "two differing literal thresholds" open question by configuration.
type ServiceConfig struct {
	InstanceID       string `yaml:"instance_id" env:"INSTANCE_ID"`
	MaxRequestBodyKB int    `yaml:"max_request_body_kb" env:"MAX_REQUEST_BODY_KB"`
}

// MaxRequestBodyBytes converts the configured KB ceiling to bytes.
func (s ServiceConfig) MaxRequestBodyBytes() int64 {
	return int64(s.MaxRequestBodyKB) * 1024
}

// RetryConfig configures the retry controller.
type RetryConfig struct {
	MaxAttempts          int     `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BaseDelayMs          int     `yaml:"base_delay_ms" env:"BASE_DELAY_MS"`
	MaxDelayMs           int     `yaml:"max_delay_ms" env:"MAX_DELAY_MS"`
	JitterFraction       float64 `yaml:"jitter_fraction" env:"JITTER_FRACTION"`
	PerAttemptTimeoutMs  int     `yaml:"per_attempt_timeout_ms" env:"PER_ATTEMPT_TIMEOUT_MS"`
	TransientStatusCodes []int   `yaml:"transient_status_codes" env:"TRANSIENT_STATUS_CODES" envSeparator:","`
}

// BaseDelay returns the configured base delay as a time.Duration.
func (r RetryConfig) BaseDelay() time.Duration { return time.Duration(r.BaseDelayMs) * time.Millisecond }

// MaxDelay returns the configured max delay as a time.Duration.
func (r RetryConfig) MaxDelay() time.Duration { return time.Duration(r.MaxDelayMs) * time.Millisecond }

// PerAttemptTimeout returns the configured per-attempt timeout as a time.Duration.
func (r RetryConfig) PerAttemptTimeout() time.Duration {
	return time.Duration(r.PerAttemptTimeoutMs) * time.Millisecond
}

// TransientStatusSet returns the configured transient codes as a lookup set.
func (r RetryConfig) TransientStatusSet() map[int]bool {
	set := make(map[int]bool, len(r.TransientStatusCodes))
	for _, c := range r.TransientStatusCodes {
		set[c] = true
	}
	return set
}

// HTTPConfig configures the HTTP executor.
type HTTPConfig struct {
	MaxResponseBodyKB int      `yaml:"max_response_body_kb" env:"MAX_RESPONSE_BODY_KB"`
	DefaultTimeoutSec int      `yaml:"default_timeout_sec" env:"DEFAULT_TIMEOUT_SEC"`
	FilteredHeaders   []string `yaml:"filtered_headers" env:"FILTERED_HEADERS" envSeparator:","`
}

// MaxResponseBodyBytes converts the configured KB ceiling to bytes.
func (h HTTPConfig) MaxResponseBodyBytes() int64 { return int64(h.MaxResponseBodyKB) * 1024 }

// DefaultTimeout returns the configured default timeout as a time.Duration.
func (h HTTPConfig) DefaultTimeout() time.Duration {
	return time.Duration(h.DefaultTimeoutSec) * time.Second
}

// ShellConfig configures the shell executor.
type ShellConfig struct {
	AllowedCommands []string `yaml:"allowed_commands" env:"ALLOWED_COMMANDS" envSeparator:","`
}

// ServerConfig describes HTTP server boundary settings. Out of the core
// dispatch pipeline's scope, but still needed to bind and shut down the
// listener.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// ObservabilityConfig describes logging settings.
type ObservabilityConfig struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// Defaults returns a Config populated with the spec's documented defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			InstanceID:       "remote-executor-01",
			MaxRequestBodyKB: 1000,
		},
		Retry: RetryConfig{
			MaxAttempts:          3,
			BaseDelayMs:          200,
			MaxDelayMs:           5000,
			JitterFraction:       0.25,
			PerAttemptTimeoutMs:  10_000,
			TransientStatusCodes: []int{408, 429, 500, 502, 503, 504},
		},
		HTTP: HTTPConfig{
			MaxResponseBodyKB: 512,
			DefaultTimeoutSec: 15,
			FilteredHeaders:   []string{"Authorization", "Proxy-Authorization", "Cookie"},
		},
		Shell: ShellConfig{
			AllowedCommands: []string{"Get-Mailbox", "Get-User", "Get-DistributionGroup"},
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides
// (double-underscore-nested, per envPrefix tags), and validates required
// fields. An empty path skips the file read and starts from Defaults().
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields hold sane values.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Service.MaxRequestBodyKB <= 0 {
		errs = append(errs, "service.max_request_body_kb must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be at least 1")
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
		errs = append(errs, "retry.jitter_fraction must be in [0,1]")
	}
	if c.HTTP.MaxResponseBodyKB <= 0 {
		errs = append(errs, "http.max_response_body_kb must be positive")
	}
	if len(c.Shell.AllowedCommands) == 0 {
		errs = append(errs, "shell.allowed_commands must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
