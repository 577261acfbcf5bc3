// Package config provides configuration management for the Studio Agent.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort     = 8877
	DefaultLogLevel = "info"
	DefaultDataDir  = ".sora-studio"

	// Environment variable names
	EnvPort     = "STUDIO_PORT"
	EnvLogLevel = "STUDIO_LOG_LEVEL"
	EnvDataDir  = "STUDIO_DATA_DIR"
	EnvHeadless = "STUDIO_HEADLESS"

	// Upstream provider environment variable names
	EnvAPIKey    = "OPENAI_API_KEY"
	EnvBaseURL   = "OPENAI_BASE_URL"
	EnvOrgID     = "OPENAI_ORG_ID"
	EnvProjectID = "OPENAI_PROJECT_ID"

	// Polling environment variable name
	EnvPollInterval = "STUDIO_POLL_INTERVAL_S"

	// Database filename
	DBFilename = "studio.db"

	// Polling defaults
	DefaultPollIntervalS = 10

	// Upstream defaults
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	CacheDir() string
	DownloadsDir() string
	Headless() bool
	APIKey() string
	BaseURL() string
	OrgID() string
	ProjectID() string
	PollInterval() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port          int
	logLevel      string
	dataDir       string
	headless      bool
	apiKey        string
	baseURL       string
	orgID         string
	projectID     string
	pollIntervalS int
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:          DefaultPort,
		logLevel:      DefaultLogLevel,
		dataDir:       defaultDataDir(),
		baseURL:       DefaultBaseURL,
		pollIntervalS: DefaultPollIntervalS,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if h := os.Getenv(EnvHeadless); h == "1" || h == "true" {
		cfg.headless = true
	}

	cfg.apiKey = os.Getenv(EnvAPIKey)
	cfg.orgID = os.Getenv(EnvOrgID)
	cfg.projectID = os.Getenv(EnvProjectID)

	if base := os.Getenv(EnvBaseURL); base != "" {
		cfg.baseURL = base
	}

	if pi := os.Getenv(EnvPollInterval); pi != "" {
		interval, err := strconv.Atoi(pi)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPollInterval, err)
		}
		if interval < 1 {
			return nil, fmt.Errorf("invalid %s: interval must be at least 1 second", EnvPollInterval)
		}
		cfg.pollIntervalS = interval
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// CacheDir returns the cache directory path (preview and thumbnail files)
func (c *EnvConfig) CacheDir() string {
	return filepath.Join(c.dataDir, "cache")
}

// DownloadsDir returns the directory completed videos are saved into
func (c *EnvConfig) DownloadsDir() string {
	return filepath.Join(c.dataDir, "downloads")
}

// Headless reports whether the system tray should be skipped
func (c *EnvConfig) Headless() bool {
	return c.headless
}

// APIKey returns the upstream provider API key
func (c *EnvConfig) APIKey() string {
	return c.apiKey
}

// BaseURL returns the upstream provider base URL
func (c *EnvConfig) BaseURL() string {
	return c.baseURL
}

func (c *EnvConfig) OrgID() string {
	return c.orgID
}

func (c *EnvConfig) ProjectID() string {
	return c.projectID
}

// PollInterval returns the status polling interval
func (c *EnvConfig) PollInterval() time.Duration {
	return time.Duration(c.pollIntervalS) * time.Second
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
