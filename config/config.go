// Package config loads mcpd runtime configuration from YAML files with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Common errors for configuration loading.
var (
	ErrFileNotFound = errors.New("configuration file not found")
	ErrInvalidYAML  = errors.New("invalid YAML syntax")
)

// Config is the full runtime configuration. YAML values override the
// defaults; environment variables override both.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Transport TransportConfig  `yaml:"transport"`
	Limits    LimitsConfig     `yaml:"limits"`
	Logging   LoggingConfig    `yaml:"logging"`
	Resources []StaticResource `yaml:"resources"`
	Prompts   []PromptTemplate `yaml:"prompts"`
}

// ServerConfig identifies the server to clients.
type ServerConfig struct {
	Name    string `yaml:"name" env:"MCPD_NAME"`
	Version string `yaml:"version" env:"MCPD_VERSION"`
	// DemoTools registers the built-in echo and server_time tools,
	// useful for smoke-testing a deployment.
	DemoTools bool `yaml:"demo_tools" env:"MCPD_DEMO_TOOLS"`
}

// TransportConfig selects and configures the transport.
type TransportConfig struct {
	// Mode is "stdio" or "websocket".
	Mode string `yaml:"mode" env:"MCPD_TRANSPORT"`
	// Addr is the listen address for the websocket transport.
	Addr string `yaml:"addr" env:"MCPD_ADDR"`
}

// LimitsConfig bounds request execution.
type LimitsConfig struct {
	CallTimeout     time.Duration `yaml:"call_timeout" env:"MCPD_CALL_TIMEOUT"`
	MaxConcurrent   int           `yaml:"max_concurrent" env:"MCPD_MAX_CONCURRENT"`
	GracePeriod     time.Duration `yaml:"grace_period" env:"MCPD_GRACE_PERIOD"`
	RateLimit       int           `yaml:"rate_limit" env:"MCPD_RATE_LIMIT"`
	RateBurst       int           `yaml:"rate_burst" env:"MCPD_RATE_BURST"`
	MaxRequestBytes int64         `yaml:"max_request_bytes" env:"MCPD_MAX_REQUEST_BYTES"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"MCPD_LOG_LEVEL"`
	// Format is "text" or "json".
	Format string `yaml:"format" env:"MCPD_LOG_FORMAT"`
}

// StaticResource declares a resource served from the config file itself.
type StaticResource struct {
	URI      string `yaml:"uri"`
	Name     string `yaml:"name"`
	MimeType string `yaml:"mime_type"`
	Text     string `yaml:"text"`
	File     string `yaml:"file"`
}

// PromptTemplate declares a prompt rendered from a template string.
type PromptTemplate struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Role        string           `yaml:"role"`
	Template    string           `yaml:"template"`
	Arguments   []PromptArgument `yaml:"arguments"`
}

// PromptArgument declares one prompt argument.
type PromptArgument struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:    "mcpd",
			Version: "0.1.0",
		},
		Transport: TransportConfig{
			Mode: "stdio",
			Addr: ":8765",
		},
		Limits: LimitsConfig{
			CallTimeout:   30 * time.Second,
			MaxConcurrent: 16,
			GracePeriod:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path if
// given, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
	}

	// envdecode reports an error when nothing in the environment matches;
	// that is the common case and not a failure.
	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	switch c.Transport.Mode {
	case "stdio":
	case "websocket":
		if c.Transport.Addr == "" {
			return errors.New("transport.addr is required for websocket mode")
		}
	default:
		return fmt.Errorf("unknown transport mode: %q", c.Transport.Mode)
	}
	if c.Limits.CallTimeout < 0 {
		return errors.New("limits.call_timeout must not be negative")
	}
	if c.Limits.MaxConcurrent < 0 {
		return errors.New("limits.max_concurrent must not be negative")
	}
	for i, r := range c.Resources {
		if r.URI == "" {
			return fmt.Errorf("resources[%d]: uri is required", i)
		}
		if r.Text == "" && r.File == "" {
			return fmt.Errorf("resources[%d]: one of text or file is required", i)
		}
	}
	for i, p := range c.Prompts {
		if p.Name == "" {
			return fmt.Errorf("prompts[%d]: name is required", i)
		}
		if p.Template == "" {
			return fmt.Errorf("prompts[%d]: template is required", i)
		}
	}
	return nil
}

// Content resolves a static resource's payload, reading the referenced
// file when the text is not inline.
func (r *StaticResource) Content() (string, error) {
	if r.Text != "" {
		return r.Text, nil
	}
	data, err := os.ReadFile(r.File)
	if err != nil {
		return "", fmt.Errorf("failed to read resource file %s: %w", r.File, err)
	}
	return string(data), nil
}
