package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/taskmesh/taskmesh/audit"
	"github.com/taskmesh/taskmesh/executor"
	"github.com/taskmesh/taskmesh/intent"
	"github.com/taskmesh/taskmesh/internal/telemetry"
	"github.com/taskmesh/taskmesh/routing"
	"github.com/taskmesh/taskmesh/store"
)

// Config is the complete engine configuration.
type Config struct {
	// Server holds the serving-layer settings used by the CLI.
	Server ServerConfig `yaml:"server"`

	// Analyzer tunes intent classification.
	Analyzer intent.AnalyzerConfig `yaml:"analyzer"`

	// Planner tunes routing.
	Planner routing.PlannerConfig `yaml:"planner"`

	// Executor tunes plan execution, retry, and the call gate.
	Executor executor.Config `yaml:"executor"`

	// Audit tunes the explainability recorder.
	Audit audit.Config `yaml:"audit"`

	// Store selects and tunes persistence.
	Store StoreConfig `yaml:"store"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log"`

	// Telemetry configures trace exporting.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig holds the settings of the serving layer around the engine.
type ServerConfig struct {
	// MetricsPort serves the Prometheus endpoint; 0 disables it.
	MetricsPort int `yaml:"metrics_port"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects the persistence backing.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`
	// DB configures the sqlite backend.
	DB store.DBConfig `yaml:"db"`
	// Cache fronts task status reads with Redis when enabled.
	Cache CachedStoreConfig `yaml:"cache"`
}

// CachedStoreConfig enables the Redis status cache.
type CachedStoreConfig struct {
	Enabled           bool `yaml:"enabled"`
	store.CacheConfig `yaml:",inline"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or console.
	Format string `yaml:"format"`
	// OutputPaths lists zap output sinks.
	OutputPaths []string `yaml:"output_paths"`
	// EnableCaller annotates entries with the call site.
	EnableCaller bool `yaml:"enable_caller"`
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			MetricsPort:     9091,
			ShutdownTimeout: 15 * time.Second,
		},
		Analyzer: intent.DefaultAnalyzerConfig(),
		Planner:  routing.DefaultPlannerConfig(),
		Executor: executor.DefaultConfig(),
		Audit:    audit.DefaultConfig(),
		Store: StoreConfig{
			Backend: "memory",
			DB:      store.DefaultDBConfig(),
			Cache:   CachedStoreConfig{CacheConfig: store.DefaultCacheConfig()},
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stderr"},
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Validate checks cross-field constraints not covered by per-component
// sanitizing.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unknown store backend %q", c.Store.Backend))
	}
	if !c.Audit.Level.Valid() {
		errs = append(errs, fmt.Sprintf("unknown audit level %q", c.Audit.Level))
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// BuildLogger constructs a zap logger from the log settings.
func (c LogConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	if c.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.DisableCaller = !c.EnableCaller
	if len(c.OutputPaths) > 0 {
		zcfg.OutputPaths = c.OutputPaths
	}
	return zcfg.Build()
}
