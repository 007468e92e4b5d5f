package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all engine configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Tracker configuration
	Tracker TrackerConfig

	// Enforcer configuration
	Enforcer EnforcerConfig

	// Daemon process configuration
	Daemon DaemonConfig

	// Web server configuration
	Web WebConfig

	// Limits file configuration
	Limits LimitsConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Path string // Path to SQLite database file
}

// TrackerConfig holds tracking behavior configuration
type TrackerConfig struct {
	PollInterval      time.Duration // How often to sample the foreground window
	MinPollInterval   time.Duration // Minimum allowed poll interval
	MaxPollInterval   time.Duration // Maximum allowed poll interval
	IdleThreshold     time.Duration // Time without input before a tick counts as idle
	ReconcileInterval time.Duration // How often to reconcile the running-process set
}

// EnforcerConfig holds limit enforcement configuration
type EnforcerConfig struct {
	TickInterval time.Duration // How often to re-check daily limits
}

// DaemonConfig holds daemon process configuration
type DaemonConfig struct {
	PIDFile string // Path to PID file for daemon management
	LogFile string // Log destination when daemonized
}

// WebConfig holds web server configuration
type WebConfig struct {
	Host string // Host to bind web server to
	Port int    // Port for web server
}

// LimitsConfig points at the YAML file the settings UI writes daily
// limits to. The file is synced into the store at startup.
type LimitsConfig struct {
	Path string
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "", // Empty means use default ~/.config/screentimed/screentimed.db
		},
		Tracker: TrackerConfig{
			PollInterval:      2 * time.Second,
			MinPollInterval:   1 * time.Second,
			MaxPollInterval:   60 * time.Second,
			IdleThreshold:     60 * time.Second,
			ReconcileInterval: 15 * time.Second,
		},
		Enforcer: EnforcerConfig{
			TickInterval: 30 * time.Second,
		},
		Daemon: DaemonConfig{
			PIDFile: fmt.Sprintf("/tmp/screentimed-%d.pid", os.Getuid()),
			LogFile: "/tmp/screentimed.log",
		},
		Web: WebConfig{
			Host: "localhost",
			Port: 10000 + os.Getuid(),
		},
		Limits: LimitsConfig{
			Path: "", // Empty means use default ~/.config/screentimed/limits.yaml
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Tracker.PollInterval < c.Tracker.MinPollInterval {
		return fmt.Errorf("poll interval (%v) cannot be less than minimum (%v)",
			c.Tracker.PollInterval, c.Tracker.MinPollInterval)
	}

	if c.Tracker.PollInterval > c.Tracker.MaxPollInterval {
		return fmt.Errorf("poll interval (%v) cannot be greater than maximum (%v)",
			c.Tracker.PollInterval, c.Tracker.MaxPollInterval)
	}

	if c.Tracker.IdleThreshold <= 0 {
		return fmt.Errorf("idle threshold must be positive")
	}

	if c.Tracker.ReconcileInterval < c.Tracker.PollInterval {
		return fmt.Errorf("reconcile interval (%v) cannot be less than poll interval (%v)",
			c.Tracker.ReconcileInterval, c.Tracker.PollInterval)
	}

	if c.Enforcer.TickInterval < c.Tracker.PollInterval {
		return fmt.Errorf("enforcement interval (%v) cannot be less than poll interval (%v)",
			c.Enforcer.TickInterval, c.Tracker.PollInterval)
	}

	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web port must be between 1 and 65535, got %d", c.Web.Port)
	}

	if c.Web.Host == "" {
		return fmt.Errorf("web host cannot be empty")
	}

	if c.Daemon.PIDFile == "" {
		return fmt.Errorf("PID file path cannot be empty")
	}

	return nil
}

// SetPollInterval sets the poll interval with validation
func (c *Config) SetPollInterval(interval time.Duration) error {
	if interval < c.Tracker.MinPollInterval {
		return fmt.Errorf("poll interval cannot be less than %v", c.Tracker.MinPollInterval)
	}
	if interval > c.Tracker.MaxPollInterval {
		return fmt.Errorf("poll interval cannot be greater than %v", c.Tracker.MaxPollInterval)
	}
	c.Tracker.PollInterval = interval
	return nil
}

// GetIdleThresholdSeconds returns the idle threshold in seconds
func (c *Config) GetIdleThresholdSeconds() int64 {
	return int64(c.Tracker.IdleThreshold.Seconds())
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Database:
    Path: %s
  Tracker:
    Poll Interval: %v
    Idle Threshold: %v
    Reconcile Interval: %v
  Enforcer:
    Tick Interval: %v
  Daemon:
    PID File: %s
    Log File: %s
  Web:
    Host: %s
    Port: %d
  Limits File: %s`,
		c.Database.Path,
		c.Tracker.PollInterval,
		c.Tracker.IdleThreshold,
		c.Tracker.ReconcileInterval,
		c.Enforcer.TickInterval,
		c.Daemon.PIDFile,
		c.Daemon.LogFile,
		c.Web.Host,
		c.Web.Port,
		c.Limits.Path,
	)
}
