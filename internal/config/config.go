// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// Defaults for unset fields.
const (
	DefaultHost        = "api.trello.com"
	DefaultPort        = 443
	DefaultTimeout     = 30 * time.Second
	DefaultMinInterval = 100 * time.Millisecond
	DefaultCacheDriver = "memory"
	DefaultNameWidth   = 25
	DefaultDescWidth   = 50
)

// TrelloConfig holds the API key and token.
type TrelloConfig struct {
	Key        string `yaml:"key"`
	Token      string `yaml:"token"`
	UseKeyring bool   `yaml:"use_keyring"`
}

// APIConfig holds connection settings
type APIConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Timeout     string `yaml:"timeout"`      // e.g. "30s"
	MinInterval string `yaml:"min_interval"` // spacing between requests, "0s" disables pacing
}

// CacheConfig selects the ID cache driver.
type CacheConfig struct {
	Driver string `yaml:"driver"` // memory or sqlite
}

// UIConfig holds user interface settings
type UIConfig struct {
	NameWidth int `yaml:"name_width"`
	DescWidth int `yaml:"desc_width"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// Config represents the application configuration
type Config struct {
	Trello  TrelloConfig  `yaml:"trello"`
	API     APIConfig     `yaml:"api"`
	Cache   CacheConfig   `yaml:"cache"`
	UI      UIConfig      `yaml:"ui"`
	Logging LoggingConfig `yaml:"logging"`

	// Top-level Key/Token from older config files.
	LegacyKey   string `yaml:"Key,omitempty"`
	LegacyToken string `yaml:"Token,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Cache: CacheConfig{Driver: DefaultCacheDriver},
	}
}

// DefaultPath returns the config file path under the XDG config directory.
func DefaultPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it creates one from the sample.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteSample(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}
	cfg.API.Host = strings.TrimSpace(cfg.API.Host)
	cfg.Cache.Driver = strings.ToLower(strings.TrimSpace(cfg.Cache.Driver))
	return cfg, nil
}

// WriteSample writes the embedded sample config to path, creating its directory.
func WriteSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	// The file may end up holding the token.
	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api.port: %d (must be 1-65535)", c.API.Port)
	}
	if c.API.Timeout != "" {
		d, err := time.ParseDuration(c.API.Timeout)
		if err != nil {
			return fmt.Errorf("invalid duration for api.timeout: %q", c.API.Timeout)
		}
		if d <= 0 {
			return fmt.Errorf("api.timeout must be positive, got %q", c.API.Timeout)
		}
	}
	if c.API.MinInterval != "" {
		d, err := time.ParseDuration(c.API.MinInterval)
		if err != nil {
			return fmt.Errorf("invalid duration for api.min_interval: %q", c.API.MinInterval)
		}
		if d < 0 {
			return fmt.Errorf("api.min_interval cannot be negative, got %q", c.API.MinInterval)
		}
	}

	switch c.Cache.Driver {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("unknown cache.driver: %q (must be 'memory' or 'sqlite')", c.Cache.Driver)
	}

	if c.UI.NameWidth < 0 {
		return fmt.Errorf("ui.name_width cannot be negative, got %d", c.UI.NameWidth)
	}
	if c.UI.DescWidth < 0 {
		return fmt.Errorf("ui.desc_width cannot be negative, got %d", c.UI.DescWidth)
	}
	return nil
}

// GetKey returns the configured API key, falling back to the legacy top-level field.
func (c *Config) GetKey() string {
	if key := strings.TrimSpace(c.Trello.Key); key != "" {
		return key
	}
	return strings.TrimSpace(c.LegacyKey)
}

// GetToken returns the configured API token, falling back to the legacy top-level field.
func (c *Config) GetToken() string {
	if token := strings.TrimSpace(c.Trello.Token); token != "" {
		return token
	}
	return strings.TrimSpace(c.LegacyToken)
}

// IsKeyringEnabled reports whether credentials may be read from the OS keyring.
func (c *Config) IsKeyringEnabled() bool {
	return c.Trello.UseKeyring
}

// GetHost returns the API host.
func (c *Config) GetHost() string {
	if c.API.Host == "" {
		return DefaultHost
	}
	return c.API.Host
}

// GetPort returns the API port.
func (c *Config) GetPort() int {
	if c.API.Port <= 0 {
		return DefaultPort
	}
	return c.API.Port
}

// GetTimeout returns the connect and exchange timeout.
// Returns 30 seconds if not configured or if parsing fails.
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil || d <= 0 {
		return DefaultTimeout
	}
	return d
}

// GetMinInterval returns the minimum spacing between requests.
// An explicit "0s" disables pacing.
func (c *Config) GetMinInterval() time.Duration {
	if c.API.MinInterval == "" {
		return DefaultMinInterval
	}
	d, err := time.ParseDuration(c.API.MinInterval)
	if err != nil || d < 0 {
		return DefaultMinInterval
	}
	return d
}

// GetCacheDriver returns the ID cache driver name.
func (c *Config) GetCacheDriver() string {
	if c.Cache.Driver == "" {
		return DefaultCacheDriver
	}
	return c.Cache.Driver
}

// GetNameWidth returns the name column width.
func (c *Config) GetNameWidth() int {
	if c.UI.NameWidth <= 0 {
		return DefaultNameWidth
	}
	return c.UI.NameWidth
}

// GetDescWidth returns the description column width.
func (c *Config) GetDescWidth() int {
	if c.UI.DescWidth <= 0 {
		return DefaultDescWidth
	}
	return c.UI.DescWidth
}

// getXDGDir returns a directory path following the XDG base directory layout.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "iroha")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "iroha")
	}
	return filepath.Join(home, fallbackPath, "iroha")
}

// GetConfigDir returns the configuration directory following the XDG base directory layout.
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetStateDir returns the state directory (log files) following the XDG base directory layout.
func GetStateDir() string {
	return getXDGDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
