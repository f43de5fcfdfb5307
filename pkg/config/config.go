// Package config loads gateway configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig represents the full gateway configuration
type ServerConfig struct {
	Address  string         `yaml:"address"`
	RootDir  string         `yaml:"root_dir"`
	WebDir   string         `yaml:"web_dir"`
	Auth     AuthConfig     `yaml:"auth"`
	Session  SessionConfig  `yaml:"session"`
	Terminal TerminalConfig `yaml:"terminal"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AuthConfig selects and configures the authentication backend.
// The backend is fixed at startup; there is no runtime switch.
type AuthConfig struct {
	Backend     string     `yaml:"backend"` // file | ldap
	TotpEnabled bool       `yaml:"totp_enabled"`
	LDAP        LDAPConfig `yaml:"ldap"`
}

// LDAPConfig configures the directory backend
type LDAPConfig struct {
	URL         string `yaml:"url"`          // e.g. ldaps://directory.example.org:636
	UserDN      string `yaml:"user_dn"`      // bind DN template, %s = username
	GroupBaseDN string `yaml:"group_base"`   // search base for group membership
	GroupFilter string `yaml:"group_filter"` // search filter, %s = username
	DefaultRole string `yaml:"default_role"` // role granted when no groups resolve
}

// SessionConfig controls session idle expiry
type SessionConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"` // 0 disables the idle sweep
	SweepSeconds   int `yaml:"sweep_seconds"`
}

// TerminalConfig controls spawned interactive shells
type TerminalConfig struct {
	Shell string `yaml:"shell"`
	Cols  int    `yaml:"cols"`
	Rows  int    `yaml:"rows"`
}

// DatabaseConfig represents durable store settings
type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite | mysql
	Path string `yaml:"path"` // file path for sqlite, DSN for mysql
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Address: ":8080",
		RootDir: "",
		WebDir:  "./web",
		Auth: AuthConfig{
			Backend:     "file",
			TotpEnabled: false,
			LDAP: LDAPConfig{
				DefaultRole: "user",
			},
		},
		Session: SessionConfig{
			TimeoutSeconds: 1800,
			SweepSeconds:   5,
		},
		Terminal: TerminalConfig{
			Shell: "bash",
			Cols:  80,
			Rows:  30,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "./arcane.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*ServerConfig, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadFromFile(path string, config *ServerConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(config *ServerConfig) {
	if addr := os.Getenv("ARCANE_ADDR"); addr != "" {
		config.Address = addr
	}

	if root := os.Getenv("ARCANE_ROOT_DIR"); root != "" {
		config.RootDir = root
	}

	if backend := os.Getenv("ARCANE_AUTH_BACKEND"); backend != "" {
		config.Auth.Backend = backend
	}

	if totp := os.Getenv("ARCANE_TOTP_ENABLED"); totp != "" {
		config.Auth.TotpEnabled = totp == "true"
	}

	if url := os.Getenv("ARCANE_LDAP_URL"); url != "" {
		config.Auth.LDAP.URL = url
	}

	if dbPath := os.Getenv("ARCANE_DB_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	if timeout := os.Getenv("ARCANE_SESSION_TIMEOUT"); timeout != "" {
		if val, err := strconv.Atoi(timeout); err == nil {
			config.Session.TimeoutSeconds = val
		}
	}

	if logLevel := os.Getenv("ARCANE_LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("ARCANE_LOG_FORMAT"); logFormat != "" {
		config.Logging.Format = logFormat
	}
}

// Validate validates the configuration
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	if c.RootDir == "" {
		return fmt.Errorf("root directory cannot be empty")
	}

	if info, err := os.Stat(c.RootDir); err != nil {
		return fmt.Errorf("root directory not accessible: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("root directory is not a directory: %s", c.RootDir)
	}

	switch c.Auth.Backend {
	case "file":
	case "ldap":
		if c.Auth.LDAP.URL == "" {
			return fmt.Errorf("ldap backend requires a directory URL")
		}
		if c.Auth.LDAP.UserDN == "" {
			return fmt.Errorf("ldap backend requires a user DN template")
		}
	default:
		return fmt.Errorf("unsupported auth backend: %s", c.Auth.Backend)
	}

	if c.Session.TimeoutSeconds < 0 {
		return fmt.Errorf("session timeout cannot be negative")
	}

	if c.Session.SweepSeconds < 1 {
		return fmt.Errorf("session sweep interval must be at least 1 second")
	}

	if c.Terminal.Cols < 1 || c.Terminal.Rows < 1 {
		return fmt.Errorf("terminal geometry must be positive")
	}

	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	valid := []string{"debug", "info", "warn", "error"}
	level = strings.ToLower(level)
	for _, v := range valid {
		if level == v {
			return true
		}
	}
	return false
}

// String returns a string representation of the configuration (for logging)
func (c *ServerConfig) String() string {
	return fmt.Sprintf("Config{Address: %s, Root: %s, Auth: %s, DB: %s, LogLevel: %s}",
		c.Address, c.RootDir, c.Auth.Backend, c.Database.Type, c.Logging.Level)
}
