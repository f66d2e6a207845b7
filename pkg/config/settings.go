// Package config loads the client settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the AdsPower local API client.
const (
	DefaultPort            = "50325"
	DefaultListener        = "http://127.0.0.1"
	DefaultBrowserVersion  = "116"
	DefaultLogPath         = "~/adspower-client.log"
	DefaultGroupID         = "0"
	DefaultProxyID         = "1"
	DefaultRequestInterval = time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultStartupInterval = time.Second
	DefaultStartupAttempts = 30
	DefaultStartupSettle   = 5 * time.Second
)

// Environment variables that override file settings.
const (
	EnvAPIKey         = "ADSPOWER_API_KEY"
	EnvPort           = "ADSPOWER_PORT"
	EnvListener       = "ADSPOWER_LISTENER"
	EnvBrowserVersion = "ADSPOWER_BROWSER_VERSION"
	EnvLogPath        = "ADSPOWER_LOG"
)

// Config represents the client configuration
type Config struct {
	// APIKey authenticates against the local API (mandatory)
	APIKey string `yaml:"api_key" json:"api_key"`

	// Port of the local API
	Port string `yaml:"port" json:"port"`

	// Listener is the daemon base address without port
	Listener string `yaml:"listener" json:"listener"`

	// BrowserVersion is the default browser kernel version for new profiles
	BrowserVersion string `yaml:"browser_version" json:"browser_version"`

	// LogPath is where the client writes its log
	LogPath string `yaml:"log_path" json:"log_path"`

	// Profile provisioning defaults
	GroupID string `yaml:"group_id" json:"group_id"`
	ProxyID string `yaml:"proxy_id" json:"proxy_id"`

	// RequestInterval is the minimum delay between two daemon calls (0 disables pacing)
	RequestInterval time.Duration `yaml:"request_interval" json:"request_interval"`

	// RequestTimeout bounds a single HTTP round trip
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// Headless is the default browser mode for lifecycle runs
	Headless bool `yaml:"headless" json:"headless"`

	// Startup controls the bounded wait for the daemon to come online
	Startup StartupConfig `yaml:"startup" json:"startup"`
}

// StartupConfig defines the daemon readiness wait
type StartupConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
	Attempts int           `yaml:"attempts" json:"attempts"`
	Settle   time.Duration `yaml:"settle" json:"settle"`
}

// Default returns a configuration populated with the documented defaults.
// APIKey is left empty and must be supplied.
func Default() *Config {
	return &Config{
		Port:            DefaultPort,
		Listener:        DefaultListener,
		BrowserVersion:  DefaultBrowserVersion,
		LogPath:         DefaultLogPath,
		GroupID:         DefaultGroupID,
		ProxyID:         DefaultProxyID,
		RequestInterval: DefaultRequestInterval,
		RequestTimeout:  DefaultRequestTimeout,
		Headless:        true,
		Startup: StartupConfig{
			Interval: DefaultStartupInterval,
			Attempts: DefaultStartupAttempts,
			Settle:   DefaultStartupSettle,
		},
	}
}

// Load builds a configuration from defaults, the YAML file at path (skipped
// when path is empty) and environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv(os.Getenv)

	logPath, err := expandHome(cfg.LogPath)
	if err != nil {
		return nil, err
	}
	cfg.LogPath = logPath

	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	overrides := map[string]*string{
		EnvAPIKey:         &c.APIKey,
		EnvPort:           &c.Port,
		EnvListener:       &c.Listener,
		EnvBrowserVersion: &c.BrowserVersion,
		EnvLogPath:        &c.LogPath,
	}
	for name, field := range overrides {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*field = v
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("api_key is required")
	}
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("port is required")
	}
	if !strings.HasPrefix(c.Listener, "http://") && !strings.HasPrefix(c.Listener, "https://") {
		return fmt.Errorf("invalid listener: %q (must start with http:// or https://)", c.Listener)
	}
	if c.RequestInterval < 0 {
		return errors.New("request_interval must be zero or positive")
	}
	if c.RequestTimeout < 0 {
		return errors.New("request_timeout must be zero or positive")
	}
	if c.Startup.Attempts <= 0 {
		return errors.New("startup.attempts must be greater than zero")
	}
	if c.Startup.Interval < 0 || c.Startup.Settle < 0 {
		return errors.New("startup durations must be zero or positive")
	}
	return nil
}

// BaseURL returns the daemon base address, e.g. http://127.0.0.1:50325.
func (c *Config) BaseURL() string {
	return strings.TrimRight(c.Listener, "/") + ":" + c.Port
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~")), nil
}
