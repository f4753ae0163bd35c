package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment  string             `toml:"environment"` // "development" or "production"
	Server       ServerConfig       `toml:"server"`
	Storage      StorageConfig      `toml:"storage"`
	Provisioner  ProvisionerConfig  `toml:"provisioner"`
	Target       TargetConfig       `toml:"target"`
	Mailbox      MailboxConfig      `toml:"mailbox"`
	Browser      BrowserConfig      `toml:"browser"`
	Verification VerificationConfig `toml:"verification"`
	Scheduler    SchedulerConfig    `toml:"scheduler"`
	Logging      LoggingConfig      `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger  BadgerConfig `toml:"badger"`
	Bundles BundleConfig `toml:"bundles"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// BundleConfig configures the session bundle file store
type BundleConfig struct {
	Dir string `toml:"dir"` // Directory holding per-profile session bundle JSON files
}

// ProvisionerConfig configures the profile-provisioning REST API client
type ProvisionerConfig struct {
	BaseURL        string        `toml:"base_url"`        // Provisioning service API base URL
	SignupURL      string        `toml:"signup_url"`      // Web signup page used by credential auto-provisioning
	RequestTimeout time.Duration `toml:"request_timeout"` // Per-request hard timeout
	MaxAttempts    int           `toml:"max_attempts"`    // Retry attempts for transient network failures
	ProfileOS      string        `toml:"profile_os"`      // Fingerprint OS hint for new profiles
	Proxy          ProxyConfig   `toml:"proxy"`
}

// ProxyConfig is the default network-egress recipe attached to new profiles
type ProxyConfig struct {
	CountryCode string `toml:"country_code"`
	Datacenter  bool   `toml:"datacenter"`
	Mobile      bool   `toml:"mobile"`
}

// TargetConfig describes the single external site accounts belong to
type TargetConfig struct {
	BaseURL   string   `toml:"base_url"`   // e.g. https://chatgpt.com
	LoginPath string   `toml:"login_path"` // e.g. /auth/login
	Origins   []string `toml:"origins"`    // Origins whose cookies/localStorage make up a session bundle
}

// MailboxConfig configures disposable mailbox creation and code polling
type MailboxConfig struct {
	BaseURL      string        `toml:"base_url"`      // Disposable mailbox REST API (mail.tm compatible)
	PollInterval time.Duration `toml:"poll_interval"` // Interval between inbox polls
	PollBudget   time.Duration `toml:"poll_budget"`   // Total time to wait for a code or link
	IMAP         IMAPConfig    `toml:"imap"`
}

// IMAPConfig configures an operator-linked IMAP inbox as an
// alternative code source for manually imported accounts
type IMAPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	UseTLS   bool   `toml:"use_tls"`
}

// BrowserConfig configures the automation driver pool
type BrowserConfig struct {
	MaxSessions    int           `toml:"max_sessions"`    // Simultaneously open browser sessions (1-4 typical)
	ActionTimeout  time.Duration `toml:"action_timeout"`  // Timeout for individual page interactions
	NavigateWait   time.Duration `toml:"navigate_wait"`   // Settle time after navigation
	MarkerSelector string        `toml:"marker_selector"` // CSS selector present only when authenticated
}

// VerificationConfig bounds the code-verification sub-flow
type VerificationConfig struct {
	MaxAttempts int           `toml:"max_attempts"` // Incorrect code submissions before FAILED
	Deadline    time.Duration `toml:"deadline"`     // AWAITING_CODE lifetime before EXPIRED
}

// SchedulerConfig configures background maintenance jobs
type SchedulerConfig struct {
	Enabled              bool   `toml:"enabled"`
	RevalidationSchedule string `toml:"revalidation_schedule"` // Cron expression for credential revalidation sweep
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig returns a config populated with defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8585,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/badger",
			},
			Bundles: BundleConfig{
				Dir: "./data/bundles",
			},
		},
		Provisioner: ProvisionerConfig{
			BaseURL:        "https://api.gologin.com",
			SignupURL:      "https://app.gologin.com/sign_up",
			RequestTimeout: 10 * time.Second,
			MaxAttempts:    3,
			ProfileOS:      "win",
			Proxy: ProxyConfig{
				CountryCode: "US",
				Datacenter:  true,
				Mobile:      false,
			},
		},
		Target: TargetConfig{
			BaseURL:   "https://chatgpt.com",
			LoginPath: "/auth/login",
			Origins:   []string{"https://chatgpt.com", "https://auth.openai.com"},
		},
		Mailbox: MailboxConfig{
			BaseURL:      "https://api.mail.tm",
			PollInterval: 5 * time.Second,
			PollBudget:   120 * time.Second,
			IMAP: IMAPConfig{
				Port:   993,
				UseTLS: true,
			},
		},
		Browser: BrowserConfig{
			MaxSessions:    2,
			ActionTimeout:  20 * time.Second,
			NavigateWait:   2 * time.Second,
			MarkerSelector: "#prompt-textarea",
		},
		Verification: VerificationConfig{
			MaxAttempts: 3,
			Deadline:    5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Enabled:              true,
			RevalidationSchedule: "0 */6 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadConfig loads configuration with precedence:
// defaults -> config files (in order) -> environment variables
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RENOVO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("RENOVO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("RENOVO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("RENOVO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if bundleDir := os.Getenv("RENOVO_BUNDLE_DIR"); bundleDir != "" {
		config.Storage.Bundles.Dir = bundleDir
	}

	if baseURL := os.Getenv("RENOVO_PROVISIONER_URL"); baseURL != "" {
		config.Provisioner.BaseURL = baseURL
	}
	if mailURL := os.Getenv("RENOVO_MAILBOX_URL"); mailURL != "" {
		config.Mailbox.BaseURL = mailURL
	}

	if level := os.Getenv("RENOVO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// Validate performs basic sanity checks on loaded configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Browser.MaxSessions < 1 {
		return fmt.Errorf("browser max_sessions must be at least 1, got %d", c.Browser.MaxSessions)
	}
	if c.Verification.MaxAttempts < 1 {
		return fmt.Errorf("verification max_attempts must be at least 1, got %d", c.Verification.MaxAttempts)
	}
	if c.Provisioner.MaxAttempts < 1 {
		return fmt.Errorf("provisioner max_attempts must be at least 1, got %d", c.Provisioner.MaxAttempts)
	}
	return nil
}
