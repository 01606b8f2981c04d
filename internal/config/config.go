// ABOUTME: Configuration loading and parsing for scout-desk
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Stale response policies for the conversation engine.
const (
	StaleResponsePersist = "persist"
	StaleResponseDrop    = "drop"
)

// DefaultPageSizeCeiling is the hard upper bound on directory search page sizes.
const DefaultPageSizeCeiling = 50

// Config represents the complete scout-desk configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" toml:"server"`
	Tailscale    TailscaleConfig    `yaml:"tailscale" toml:"tailscale"`
	Database     DatabaseConfig     `yaml:"database" toml:"database"`
	Auth         AuthConfig         `yaml:"auth" toml:"auth"`
	Upstream     UpstreamConfig     `yaml:"upstream" toml:"upstream"`
	Search       SearchConfig       `yaml:"search" toml:"search"`
	Conversation ConversationConfig `yaml:"conversation" toml:"conversation"`
	Directory    DirectoryConfig    `yaml:"directory" toml:"directory"`
	Records      RecordsConfig      `yaml:"records" toml:"records"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the workspace API listen address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"` // serve :443 with tailnet certificates
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds bearer token configuration.
// JWTSecret verifies tokens issued by the identity provider. Token is the
// credential of the analyst the workspace acts for; it may be empty, in which
// case outbound calls carry the unauthenticated marker.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	Token     string `yaml:"token" toml:"token"`
}

// UpstreamConfig describes the research backend the workspace consumes
type UpstreamConfig struct {
	BaseURL    string        `yaml:"base_url" toml:"base_url"`
	RecordsURL string        `yaml:"records_url" toml:"records_url"` // defaults to BaseURL
	Timeout    time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// SearchConfig holds prospect search limits
type SearchConfig struct {
	PageSizeCeiling int `yaml:"page_size_ceiling" toml:"page_size_ceiling"`
}

// ConversationConfig holds conversation engine settings
type ConversationConfig struct {
	Scope         string        `yaml:"scope" toml:"scope"`
	StaleResponse string        `yaml:"stale_response" toml:"stale_response"`
	SwitchWindow  time.Duration `yaml:"-" toml:"-"`

	SwitchWindowRaw string `yaml:"switch_window" toml:"switch_window"`
}

// DirectoryConfig holds session directory settings
type DirectoryConfig struct {
	RefreshWindow time.Duration `yaml:"-" toml:"-"`

	RefreshWindowRaw string `yaml:"refresh_window" toml:"refresh_window"`
}

// RecordsConfig controls whether this process also serves the persistence endpoints
type RecordsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes raw configuration bytes, applies defaults and validates the result.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = "127.0.0.1:7420"
	}
	if c.Upstream.RecordsURL == "" {
		c.Upstream.RecordsURL = c.Upstream.BaseURL
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 2 * time.Minute
	}
	if c.Search.PageSizeCeiling <= 0 {
		c.Search.PageSizeCeiling = DefaultPageSizeCeiling
	}
	if c.Conversation.Scope == "" {
		c.Conversation.Scope = "all"
	}
	if c.Conversation.StaleResponse == "" {
		c.Conversation.StaleResponse = StaleResponsePersist
	}
	if c.Conversation.SwitchWindow == 0 {
		c.Conversation.SwitchWindow = 150 * time.Millisecond
	}
	if c.Directory.RefreshWindow == 0 {
		c.Directory.RefreshWindow = 100 * time.Millisecond
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}

	if c.Records.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when records.enabled is set")
	}

	switch c.Conversation.StaleResponse {
	case StaleResponsePersist, StaleResponseDrop:
	default:
		return fmt.Errorf("conversation.stale_response must be %q or %q, got %q",
			StaleResponsePersist, StaleResponseDrop, c.Conversation.StaleResponse)
	}

	if c.Search.PageSizeCeiling > DefaultPageSizeCeiling {
		return fmt.Errorf("search.page_size_ceiling cannot exceed %d", DefaultPageSizeCeiling)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"upstream.timeout", cfg.Upstream.TimeoutRaw, &cfg.Upstream.Timeout},
		{"conversation.switch_window", cfg.Conversation.SwitchWindowRaw, &cfg.Conversation.SwitchWindow},
		{"directory.refresh_window", cfg.Directory.RefreshWindowRaw, &cfg.Directory.RefreshWindow},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
