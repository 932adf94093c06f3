// Package config handles piiscrub configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/faheem-arif/pii-scrubber/pkg/redact"
	"github.com/faheem-arif/pii-scrubber/pkg/scanners"
	"github.com/faheem-arif/pii-scrubber/pkg/scrub"
)

const (
	// DefaultConfigDir is the default configuration directory name.
	DefaultConfigDir = ".piiscrub"
	// DefaultConfigFile is the default configuration file name.
	DefaultConfigFile = "config.yaml"
	// ProjectOverrideFile is the project-level override file name.
	ProjectOverrideFile = "scrub.yaml"
)

// Environment variables read on load.
const (
	EnvHashSalt = "PIISCRUB_HASH_SALT"
	EnvLogLevel = "PIISCRUB_LOG_LEVEL"
)

// Config holds the piiscrub configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Default scrub options
	Scrub ScrubConfig `yaml:"scrub"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`

	// Audit store settings
	Audit AuditConfig `yaml:"audit"`

	// Metrics settings
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// ScrubConfig holds the default options applied when a caller sends none.
type ScrubConfig struct {
	Mode       string `yaml:"mode"`
	KeepLast   int    `yaml:"keep_last"`
	Aggressive bool   `yaml:"aggressive"`
	MaxMatches int    `yaml:"max_matches"`
	HashSalt   string `yaml:"hash_salt,omitempty"`

	ProjectPath string `yaml:"-"` // Path where project override was loaded from
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path,omitempty"`
	JSON  bool   `yaml:"json"`
}

// AuditConfig holds audit store settings.
type AuditConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	Path   string `yaml:"path"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         7676,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			MaxBodyBytes: 10 << 20,
		},
		Scrub: ScrubConfig{
			Mode: string(redact.ModeRedact),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Audit: AuditConfig{
			Driver: "memory",
			Path:   filepath.Join("~", DefaultConfigDir, "audit.db"),
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "piiscrub",
		},
	}
}

// ScrubOptions converts the scrub section into engine options.
func (c *Config) ScrubOptions() scrub.Options {
	return scrub.Options{
		Mode:       scrub.Mode(c.Scrub.Mode),
		KeepLast:   c.Scrub.KeepLast,
		Aggressive: c.Scrub.Aggressive,
		HashSalt:   c.Scrub.HashSalt,
		MaxMatches: c.Scrub.MaxMatches,
	}
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing files
// are ignored and existing variables are never overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load loads the configuration from the default location (~/.piiscrub/config.yaml).
// If the config file doesn't exist, it returns the default configuration.
// If projectDir is provided, it also looks for project-level overrides.
func Load(projectDir string) (*Config, error) {
	configPath, err := DefaultConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to determine config path: %w", err)
	}

	return LoadFrom(configPath, projectDir)
}

// LoadFrom loads configuration from a specific path with optional project overrides.
func LoadFrom(configPath, projectDir string) (*Config, error) {
	cfg := DefaultConfig()

	expandedPath, err := ExpandPath(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path: %w", err)
	}

	if _, err := os.Stat(expandedPath); err == nil {
		data, err := os.ReadFile(expandedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if projectDir != "" {
		if err := loadProjectOverrides(cfg, projectDir); err != nil {
			return nil, fmt.Errorf("failed to load project overrides: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("failed to expand paths in config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadProjectOverrides loads and merges project-level scrub overrides.
func loadProjectOverrides(cfg *Config, projectDir string) error {
	projectConfigPath := filepath.Join(projectDir, DefaultConfigDir, ProjectOverrideFile)

	if _, err := os.Stat(projectConfigPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(projectConfigPath)
	if err != nil {
		return fmt.Errorf("failed to read project config: %w", err)
	}

	// ProjectOverride only allows overriding certain fields
	var override ProjectOverride
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("failed to parse project config: %w", err)
	}

	if override.Scrub.Mode != "" {
		cfg.Scrub.Mode = override.Scrub.Mode
	}
	if override.Scrub.Aggressive != nil {
		cfg.Scrub.Aggressive = *override.Scrub.Aggressive
	}
	if override.Scrub.KeepLast != nil {
		cfg.Scrub.KeepLast = *override.Scrub.KeepLast
	}
	cfg.Scrub.ProjectPath = projectConfigPath

	return nil
}

// ProjectOverride represents the allowed project-level configuration overrides.
// Salts are deliberately not accepted here so they never land in a repository.
type ProjectOverride struct {
	Scrub struct {
		Mode       string `yaml:"mode"`
		Aggressive *bool  `yaml:"aggressive"`
		KeepLast   *int   `yaml:"keep_last"`
	} `yaml:"scrub"`
}

// applyEnv applies environment overrides.
func (c *Config) applyEnv() {
	if salt := os.Getenv(EnvHashSalt); salt != "" {
		c.Scrub.HashSalt = salt
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}
}

// expandPaths expands ~ and environment variables in path fields.
func (c *Config) expandPaths() error {
	var err error
	c.Audit.Path, err = ExpandPath(c.Audit.Path)
	if err != nil {
		return fmt.Errorf("failed to expand audit path: %w", err)
	}
	c.Logging.Path, err = ExpandPath(c.Logging.Path)
	if err != nil {
		return fmt.Errorf("failed to expand logging path: %w", err)
	}
	return nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.MaxBodyBytes < 1 {
		errs = append(errs, "server max_body_bytes must be at least 1")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		errs = append(errs, "server timeouts must not be negative")
	}

	mode, err := redact.ParseMode(c.Scrub.Mode)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid scrub mode: %s (must be redact, token-map, or hash)", c.Scrub.Mode))
	}
	if mode == redact.ModeHash && c.Scrub.HashSalt == "" {
		errs = append(errs, fmt.Sprintf("scrub mode hash requires hash_salt (or %s)", EnvHashSalt))
	}
	if c.Scrub.KeepLast < 0 || c.Scrub.KeepLast > redact.MaxKeepLast {
		errs = append(errs, fmt.Sprintf("scrub keep_last must be 0-%d", redact.MaxKeepLast))
	}
	if c.Scrub.MaxMatches < 0 || c.Scrub.MaxMatches > scanners.MaxMatchesCeiling {
		errs = append(errs, fmt.Sprintf("scrub max_matches must be 0-%d", scanners.MaxMatchesCeiling))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level))
	}

	switch c.Audit.Driver {
	case "memory":
	case "sqlite":
		if c.Audit.Path == "" {
			errs = append(errs, "audit path is required for the sqlite driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid audit driver: %s (must be memory or sqlite)", c.Audit.Driver))
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		errs = append(errs, "metrics namespace is required when enabled")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, DefaultConfigDir, DefaultConfigFile), nil
}

// DefaultConfigDirPath returns the default configuration directory path.
func DefaultConfigDirPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, DefaultConfigDir), nil
}

// ExpandPath expands ~ to the user's home directory and environment variables.
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(homeDir, path[2:])
	} else if path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = homeDir
	}

	return os.ExpandEnv(path), nil
}

var fileHeader = []byte(`# piiscrub configuration
# Keep hash salts out of this file; set PIISCRUB_HASH_SALT instead.

`)

// Initialize creates the default configuration directory and file if they don't exist.
// Returns the path to the config file and whether it was newly created.
func Initialize() (string, bool, error) {
	configDir, err := DefaultConfigDirPath()
	if err != nil {
		return "", false, fmt.Errorf("failed to determine config directory: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)

	if _, err := os.Stat(configPath); err == nil {
		return configPath, false, nil
	}

	if err := DefaultConfig().SaveTo(configPath); err != nil {
		return "", false, err
	}

	return configPath, true, nil
}

// Save writes the configuration to the default location.
func (c *Config) Save() error {
	configPath, err := DefaultConfigPath()
	if err != nil {
		return fmt.Errorf("failed to determine config path: %w", err)
	}

	return c.SaveTo(configPath)
}

// SaveTo writes the configuration to a specific path. The hash salt is never written.
func (c *Config) SaveTo(path string) error {
	expandedPath, err := ExpandPath(path)
	if err != nil {
		return fmt.Errorf("failed to expand path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(expandedPath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	out := *c
	out.Scrub.HashSalt = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(append([]byte{}, fileHeader...), data...)

	if err := os.WriteFile(expandedPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Address returns the server listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
