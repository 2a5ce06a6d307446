// Package config provides YAML configuration parsing for opsconsole.
//
// This package enables running the console as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Shop Backend
//	port: 8080
//	base_url: ${BACKEND_URL:-https://api.example.com}
//	metrics_path: /actuator/prometheus
//	poll_interval: 10s
//	token_file: ~/.opsconsole/token.yaml
//
//	history:
//	  driver: sqlite
//	  path: ./data/history.db
//	  retention: 24h
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minPollInterval is the minimum allowed polling interval for production configs.
// This prevents accidental DoS of the backend with overly aggressive polling.
const minPollInterval = 1 * time.Second

// Defaults applied by [Parse].
const (
	DefaultTitle        = "Ops Console"
	DefaultPort         = 8080
	DefaultMetricsPath  = "/actuator/prometheus"
	DefaultPollInterval = 10 * time.Second
	DefaultTokenFile    = "~/.opsconsole/token.yaml"
)

// History drivers.
const (
	HistoryNone   = "none"
	HistoryMemory = "memory"
	HistorySQLite = "sqlite"
)

// Config is the root configuration structure for opsconsole.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "Ops Console" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// BaseURL is the root URL of the backend. Required.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BaseURL string `yaml:"base_url"`

	// MetricsPath is the exposition endpoint relative to BaseURL.
	// Defaults to /actuator/prometheus.
	MetricsPath string `yaml:"metrics_path"`

	// PollInterval is the time between metrics fetches while anyone watches.
	// Accepts duration strings like "10s", "1m", "500ms".
	// Defaults to 10s.
	PollInterval Duration `yaml:"poll_interval"`

	// FetchTimeout bounds one metrics request. Zero means no timeout.
	FetchTimeout Duration `yaml:"fetch_timeout"`

	// TokenFile is where the session token is kept between invocations.
	// A leading "~/" is expanded to the home directory.
	TokenFile string `yaml:"token_file"`

	// History configures recording of dashboard gauges.
	History HistoryConfig `yaml:"history"`
}

// HistoryConfig selects and tunes the history store.
type HistoryConfig struct {
	// Driver is "none", "memory" or "sqlite". Defaults to "none".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file. Required for the sqlite driver.
	Path string `yaml:"path"`

	// Retention is how long the sqlite driver keeps points. Zero keeps all.
	Retention Duration `yaml:"retention"`

	// Capacity is the number of points per metric kept by the memory driver.
	Capacity int `yaml:"capacity"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// expandHome resolves a leading "~/" against the user's home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in base_url, token_file and
// history.path. Defaults are applied before validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.MetricsPath == "" {
		c.MetricsPath = DefaultMetricsPath
	}
	if c.PollInterval == 0 {
		c.PollInterval = Duration(DefaultPollInterval)
	}
	if c.TokenFile == "" {
		c.TokenFile = DefaultTokenFile
	}
	if c.History.Driver == "" {
		c.History.Driver = HistoryNone
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	expanded, err := expandEnvVars(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	c.BaseURL = strings.TrimRight(expanded, "/")

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("base_url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base_url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("base_url must include a host")
	}

	if !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("metrics_path must start with /, got %q", c.MetricsPath)
	}

	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.FetchTimeout.Duration() < 0 {
		return fmt.Errorf("fetch_timeout cannot be negative, got %s", c.FetchTimeout.Duration())
	}

	tokenFile, err := expandEnvVars(c.TokenFile)
	if err != nil {
		return fmt.Errorf("token_file: %w", err)
	}
	if c.TokenFile, err = expandHome(tokenFile); err != nil {
		return fmt.Errorf("token_file: %w", err)
	}

	return c.History.validate()
}

func (h *HistoryConfig) validate() error {
	switch h.Driver {
	case HistoryNone:
	case HistoryMemory:
		if h.Capacity < 0 {
			return fmt.Errorf("history: capacity cannot be negative, got %d", h.Capacity)
		}
	case HistorySQLite:
		if h.Path == "" {
			return errors.New("history: path is required for the sqlite driver")
		}
		expanded, err := expandEnvVars(h.Path)
		if err != nil {
			return fmt.Errorf("history: path: %w", err)
		}
		if h.Path, err = expandHome(expanded); err != nil {
			return fmt.Errorf("history: path: %w", err)
		}
		if h.Retention.Duration() < 0 {
			return fmt.Errorf("history: retention cannot be negative, got %s", h.Retention.Duration())
		}
	default:
		return fmt.Errorf("history: unknown driver %q (expected none, memory or sqlite)", h.Driver)
	}
	return nil
}
