package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Parse     ParseConfig     `mapstructure:"parse"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Plan      PlanConfig      `mapstructure:"plan"`
	Report    ReportConfig    `mapstructure:"report"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration for serve mode.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds run-history database configuration. An empty DSN
// disables run history entirely.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ScanConfig holds tree-walk configuration.
type ScanConfig struct {
	// ExcludePatterns are glob patterns skipped during the walk, on top of
	// the built-in exclusions (.git, node_modules, vendor, ...).
	ExcludePatterns []string `mapstructure:"exclude_patterns"`

	// MaxDepth bounds directory depth below the root; 0 means unbounded.
	MaxDepth int `mapstructure:"max_depth"`

	// FollowSymlinks enables descending into symlinked directories.
	FollowSymlinks bool `mapstructure:"follow_symlinks"`
}

// ParseConfig holds parser pool configuration.
type ParseConfig struct {
	// Concurrency bounds the parse worker pool; 0 means NumCPU.
	Concurrency int `mapstructure:"concurrency"`
}

// ReconcileConfig holds advisory reconciliation configuration.
type ReconcileConfig struct {
	// Enabled turns on the reconciliation phase.
	Enabled bool `mapstructure:"enabled"`

	// AdvisorURL is the base URL of the advisory collaborator.
	AdvisorURL string `mapstructure:"advisor_url"`

	// APIKey authenticates against the collaborator, optional.
	APIKey string `mapstructure:"api_key"`

	// Timeout bounds the whole reconciliation phase. On expiry the run
	// completes with heuristic-only recommendations.
	Timeout time.Duration `mapstructure:"timeout"`
}

// PlanConfig holds deployment plan emission configuration.
type PlanConfig struct {
	// BlockOn is the minimum conflict severity that keeps a service out of
	// a plan: "info", "warning" or "blocking".
	BlockOn string `mapstructure:"block_on"`
}

// ReportConfig holds report output configuration.
type ReportConfig struct {
	// Dir is the output directory name inside the analyzed root.
	Dir string `mapstructure:"dir"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "")
	v.SetDefault("scan.exclude_patterns", []string{})
	v.SetDefault("scan.max_depth", 0)
	v.SetDefault("scan.follow_symlinks", false)
	v.SetDefault("parse.concurrency", 0)
	v.SetDefault("reconcile.enabled", false)
	v.SetDefault("reconcile.advisor_url", "http://localhost:9090")
	v.SetDefault("reconcile.api_key", "")
	v.SetDefault("reconcile.timeout", "60s")
	v.SetDefault("plan.block_on", "blocking")
	v.SetDefault("report.dir", ".shipmap")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("SHIPMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
