// Package config loads vigil configuration from YAML files and VIGIL_*
// environment variables.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/yairfalse/vigil/pkg/domain"
)

// Config is the full service configuration
type Config struct {
	App        AppConfig           `yaml:"app"`
	Monitoring MonitoringConfig    `yaml:"monitoring"`
	Thresholds domain.ThresholdSet `yaml:"thresholds"`
	Database   DatabaseConfig      `yaml:"database"`
	API        APIConfig           `yaml:"api"`
	NATS       NATSConfig          `yaml:"nats"`
}

// AppConfig describes the monitored application
type AppConfig struct {
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
}

// MonitoringConfig tunes the monitoring loop
type MonitoringConfig struct {
	AutoStart         bool          `yaml:"auto_start"`
	Interval          time.Duration `yaml:"interval"`
	HistoryCapacity   int           `yaml:"history_capacity"`
	AlertCapacity     int           `yaml:"alert_capacity"`
	SuppressionWindow time.Duration `yaml:"suppression_window"`
	DispatchQueueSize int           `yaml:"dispatch_queue_size"`
	ThresholdsFile    string        `yaml:"thresholds_file"`
}

// DatabaseConfig selects the database to probe. An empty DSN disables the
// probe.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	SlowQueryMs  int    `yaml:"slow_query_ms"`
	ProbeQuery   string `yaml:"probe_query"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// APIConfig configures the HTTP API
type APIConfig struct {
	Address         string        `yaml:"address"`
	AdminToken      string        `yaml:"admin_token"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// NATSConfig configures event publishing over NATS
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// SupportedDrivers are the database/sql driver names registered by vigil
var SupportedDrivers = []string{"pgx", "mysql"}

var logLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns a configuration that runs without a database or NATS
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Version:     "dev",
			Environment: "development",
			LogLevel:    "info",
		},
		Monitoring: MonitoringConfig{
			AutoStart:         true,
			Interval:          time.Minute,
			HistoryCapacity:   1440,
			AlertCapacity:     1000,
			SuppressionWindow: 5 * time.Minute,
			DispatchQueueSize: 64,
		},
		Thresholds: domain.DefaultThresholds(),
		Database: DatabaseConfig{
			Driver:       "pgx",
			SlowQueryMs:  1000,
			ProbeQuery:   "SELECT 1",
			MaxOpenConns: 10,
		},
		API: APIConfig{
			Address:         ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "vigil",
		},
	}
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var errs []ValidationError
	add := func(field, message, suggestion string, value interface{}) {
		e := NewValidationError(field, message, suggestion)
		e.CurrentValue = value
		errs = append(errs, e)
	}

	if !slices.Contains(logLevels, c.App.LogLevel) {
		add("app.log_level", "unknown log level", "use one of debug, info, warn, error", c.App.LogLevel)
	}

	m := c.Monitoring
	if m.Interval <= 0 {
		add("monitoring.interval", "must be positive", "set a duration such as 1m", m.Interval.String())
	}
	if m.HistoryCapacity <= 0 {
		add("monitoring.history_capacity", "must be positive", "1440 keeps one day at a 1m interval", m.HistoryCapacity)
	}
	if m.AlertCapacity <= 0 {
		add("monitoring.alert_capacity", "must be positive", "the default is 1000", m.AlertCapacity)
	}
	if m.SuppressionWindow <= 0 {
		add("monitoring.suppression_window", "must be positive", "the default is 5m", m.SuppressionWindow.String())
	}
	if m.DispatchQueueSize <= 0 {
		add("monitoring.dispatch_queue_size", "must be positive", "the default is 64", m.DispatchQueueSize)
	}

	if err := c.Thresholds.Validate(); err != nil {
		add("thresholds", err.Error(), "critical bounds must be >= warning bounds and non-negative", nil)
	}

	if c.Database.DSN != "" {
		if !slices.Contains(SupportedDrivers, c.Database.Driver) {
			add("database.driver", "unsupported driver", fmt.Sprintf("use one of %v", SupportedDrivers), c.Database.Driver)
		}
		if c.Database.SlowQueryMs <= 0 {
			add("database.slow_query_ms", "must be positive", "the default is 1000", c.Database.SlowQueryMs)
		}
	}

	if c.API.Address == "" {
		add("api.address", "must not be empty", "use :8080 to listen on all interfaces", nil)
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		add("nats.url", "required when nats is enabled", "set nats.url or disable nats", nil)
	}

	if len(errs) > 0 {
		return ValidationErrors{Errors: errs}
	}
	return nil
}

// SlowQuery returns the slow query threshold as a duration
func (d DatabaseConfig) SlowQuery() time.Duration {
	return time.Duration(d.SlowQueryMs) * time.Millisecond
}
