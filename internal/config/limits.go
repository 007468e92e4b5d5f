package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	defaultLimitsName = "limits.yaml"
	defaultLimitsDir  = ".config/screentimed"
)

// LimitEntry mirrors one daily limit in the limits file. The settings UI
// writes this file; the engine only reads it.
type LimitEntry struct {
	Application          string `yaml:"application"`
	TimeLimitMinutes     int    `yaml:"time_limit_minutes"`
	ShouldAlert          bool   `yaml:"should_alert"`
	ShouldClose          bool   `yaml:"should_close"`
	AlertBeforeClose     bool   `yaml:"alert_before_close"`
	AlertDurationSeconds int    `yaml:"alert_duration_seconds"`
}

// LimitsFile is the on-disk shape of the limits configuration.
type LimitsFile struct {
	Limits []LimitEntry `yaml:"limits"`
}

// GetDefaultLimitsPath returns the default location of the limits file.
func GetDefaultLimitsPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, defaultLimitsDir, defaultLimitsName), nil
}

// LoadLimitsFile reads the limits file. A missing file is not an error;
// it simply means no limits are configured outside the store.
func LoadLimitsFile(path string) (*LimitsFile, error) {
	if path == "" {
		var err error
		path, err = GetDefaultLimitsPath()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LimitsFile{}, nil
		}
		return nil, fmt.Errorf("failed to read limits file: %w", err)
	}

	var file LimitsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse limits file: %w", err)
	}

	return &file, nil
}
