package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv loads configuration from environment variables
// Environment variables override default values
func LoadFromEnv(cfg *Config) {
	if dbPath := os.Getenv("SCREENTIMED_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if pollInterval := os.Getenv("SCREENTIMED_POLL_INTERVAL"); pollInterval != "" {
		if seconds, err := strconv.Atoi(pollInterval); err == nil && seconds > 0 {
			interval := time.Duration(seconds) * time.Second
			if interval >= cfg.Tracker.MinPollInterval && interval <= cfg.Tracker.MaxPollInterval {
				cfg.Tracker.PollInterval = interval
			}
		}
	}

	if idleThreshold := os.Getenv("SCREENTIMED_IDLE_THRESHOLD"); idleThreshold != "" {
		if seconds, err := strconv.Atoi(idleThreshold); err == nil && seconds > 0 {
			cfg.Tracker.IdleThreshold = time.Duration(seconds) * time.Second
		}
	}

	if reconcile := os.Getenv("SCREENTIMED_RECONCILE_INTERVAL"); reconcile != "" {
		if seconds, err := strconv.Atoi(reconcile); err == nil && seconds > 0 {
			cfg.Tracker.ReconcileInterval = time.Duration(seconds) * time.Second
		}
	}

	if enforce := os.Getenv("SCREENTIMED_ENFORCE_INTERVAL"); enforce != "" {
		if seconds, err := strconv.Atoi(enforce); err == nil && seconds > 0 {
			cfg.Enforcer.TickInterval = time.Duration(seconds) * time.Second
		}
	}

	if pidFile := os.Getenv("SCREENTIMED_PID_FILE"); pidFile != "" {
		cfg.Daemon.PIDFile = pidFile
	}

	if logFile := os.Getenv("SCREENTIMED_LOG_FILE"); logFile != "" {
		cfg.Daemon.LogFile = logFile
	}

	if webHost := os.Getenv("SCREENTIMED_WEB_HOST"); webHost != "" {
		cfg.Web.Host = webHost
	}

	if webPort := os.Getenv("SCREENTIMED_WEB_PORT"); webPort != "" {
		if port, err := strconv.Atoi(webPort); err == nil && port > 0 && port <= 65535 {
			cfg.Web.Port = port
		}
	}

	if limitsFile := os.Getenv("SCREENTIMED_LIMITS_FILE"); limitsFile != "" {
		cfg.Limits.Path = limitsFile
	}
}

// New creates a new Config with default values and loads from environment
func New() *Config {
	cfg := Default()
	LoadFromEnv(cfg)
	return cfg
}
