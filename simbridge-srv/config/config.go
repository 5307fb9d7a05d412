package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/stubmill/simbridge/simbridge-srv/logger"
)

// JournalBackend selects where journal entries are persisted.
type JournalBackend string

const (
	JournalMemory   JournalBackend = "memory"
	JournalSQLite   JournalBackend = "sqlite"
	JournalPostgres JournalBackend = "postgres"
)

// DefaultSimulationDir is where simulation files are looked up when a
// source gives only a relative name.
const DefaultSimulationDir = "testdata/simulations"

// UpstreamConfig configures how captured/spied requests reach the real
// destination. An empty Socks5Address means the default network is used.
type UpstreamConfig struct {
	Socks5Address string `json:"socks5-address"`
	Username      string `json:"username"`
	Password      string `json:"password"`
}

// JournalConfig configures journal persistence.
type JournalConfig struct {
	Backend    JournalBackend `json:"backend"`
	Path       string         `json:"path"` // sqlite database file
	DSN        string         `json:"dsn"`  // postgres connection string
	BufferSize int            `json:"buffer-size"`
}

// AdminConfig configures the admin API listener.
type AdminConfig struct {
	AuthEnabled bool   `json:"auth-enabled"`
	JWTSecret   string `json:"jwt-secret"`
	Username    string `json:"username"`
	Password    string `json:"password"`
}

// MetricsConfig configures prometheus metrics exposed on the admin API.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// Config is the full proxy configuration. It is resolved once and passed
// at proxy construction; the proxy never mutates it.
type Config struct {
	ListenAddress            string         `json:"listen-address"`
	AdminAddress             string         `json:"admin-address"`
	TimeoutSeconds           int            `json:"timeout-seconds"`
	MaxConcurrentConnections int            `json:"max-concurrent-connections"`
	SimulationDir            string         `json:"simulation-dir"`
	IncrementalCapture       bool           `json:"incremental-capture"`
	WatchSources             bool           `json:"watch-sources"`
	Upstream                 UpstreamConfig `json:"upstream"`
	Journal                  JournalConfig  `json:"journal"`
	Admin                    AdminConfig    `json:"admin"`
	Metrics                  MetricsConfig  `json:"metrics"`
}

// IsIncrementalCapture reports whether capture runs build on previously
// exported traffic instead of starting from scratch.
func (c *Config) IsIncrementalCapture() bool {
	return c.IncrementalCapture
}

// Default returns the built-in configuration. Listeners bind ephemeral
// ports so parallel test suites never collide.
func Default() *Config {
	return &Config{
		ListenAddress:            "127.0.0.1:0",
		AdminAddress:             "127.0.0.1:0",
		TimeoutSeconds:           30,
		MaxConcurrentConnections: 100,
		SimulationDir:            DefaultSimulationDir,
		Journal: JournalConfig{
			Backend:    JournalMemory,
			BufferSize: 1000,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "simbridge",
		},
	}
}

// Load builds a configuration from defaults, environment variables and an
// optional config file, in that order of increasing precedence. Supported
// file formats are JSON (.json) and HCL (.hcl).
func Load(configPath string) (*Config, error) {
	cfg := Default()
	loadFromEnv(cfg)

	if configPath != "" {
		ext := strings.ToLower(filepath.Ext(configPath))
		var err error
		switch ext {
		case ".json":
			err = loadJSON(configPath, cfg)
		case ".hcl":
			err = loadHCL(configPath, cfg)
		default:
			return nil, fmt.Errorf("unsupported config file format: %s", ext)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise only fail at start time.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen-address must not be empty")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout-seconds must be positive, got %d", c.TimeoutSeconds)
	}
	switch c.Journal.Backend {
	case JournalMemory:
	case JournalSQLite:
		if c.Journal.Path == "" {
			return fmt.Errorf("journal backend sqlite requires journal.path")
		}
	case JournalPostgres:
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal backend postgres requires journal.dsn")
		}
	default:
		return fmt.Errorf("unknown journal backend: %s", c.Journal.Backend)
	}
	if c.Admin.AuthEnabled && c.Admin.JWTSecret == "" {
		return fmt.Errorf("admin auth enabled but no jwt-secret configured")
	}
	return nil
}

func loadJSON(configPath string, cfg *Config) error {
	cleanPath := filepath.Clean(configPath)
	file, err := os.Open(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.Error("Error closing config file: %v", closeErr)
		}
	}()

	dec := json.NewDecoder(file)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode JSON config: %w", err)
	}
	return nil
}

// loadFromEnv applies SIMBRIDGE_* environment variables to cfg.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("SIMBRIDGE_LISTEN_ADDRESS"); v != "" {
		cfg.ListenAddress = v
	}
	if v := os.Getenv("SIMBRIDGE_ADMIN_ADDRESS"); v != "" {
		cfg.AdminAddress = v
	}
	if v := os.Getenv("SIMBRIDGE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutSeconds = n
		} else {
			logger.Warn("Ignoring invalid SIMBRIDGE_TIMEOUT_SECONDS: %q", v)
		}
	}
	if v := os.Getenv("SIMBRIDGE_SIMULATION_DIR"); v != "" {
		cfg.SimulationDir = v
	}
	if v := os.Getenv("SIMBRIDGE_INCREMENTAL_CAPTURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.IncrementalCapture = b
		}
	}
	if v := os.Getenv("SIMBRIDGE_JOURNAL_BACKEND"); v != "" {
		cfg.Journal.Backend = JournalBackend(v)
	}
	if v := os.Getenv("SIMBRIDGE_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("SIMBRIDGE_JOURNAL_DSN"); v != "" {
		cfg.Journal.DSN = v
	}
	if v := os.Getenv("SIMBRIDGE_JWT_SECRET"); v != "" {
		cfg.Admin.JWTSecret = v
	}
	if v := os.Getenv("SIMBRIDGE_UPSTREAM_SOCKS5"); v != "" {
		cfg.Upstream.Socks5Address = v
	}
}
