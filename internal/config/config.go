// Package config loads goals configuration from YAML files, a .env file and
// GOALS_* environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the full goals configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Client ClientConfig `mapstructure:"client"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Log    LogConfig    `mapstructure:"log"`
	Coach  CoachConfig  `mapstructure:"coach"`
	Import ImportConfig `mapstructure:"import"`
}

// ServerConfig configures `goals serve`.
type ServerConfig struct {
	Addr   string `mapstructure:"addr"`
	DBPath string `mapstructure:"db_path"`
	Driver string `mapstructure:"driver"` // sqlite or libsql
}

// ClientConfig locates the backend and the session token used by client commands.
type ClientConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// SyncConfig tunes the fetch retry policy.
type SyncConfig struct {
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxRetries int           `mapstructure:"max_retries"`
	ProbeTable string        `mapstructure:"probe_table"`
}

// LogConfig controls where logs go. An empty File means stderr.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// CoachConfig configures the coaching assistant.
type CoachConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// ImportConfig configures the goal-file inbox.
type ImportConfig struct {
	Dir      string        `mapstructure:"dir"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Server.Driver {
	case "sqlite", "libsql":
	default:
		return fmt.Errorf("server.driver must be sqlite or libsql (got %q)", c.Server.Driver)
	}
	if c.Sync.BaseDelay <= 0 {
		return fmt.Errorf("sync.base_delay must be positive (got %s)", c.Sync.BaseDelay)
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries cannot be negative (got %d)", c.Sync.MaxRetries)
	}
	if c.Coach.MaxTokens <= 0 {
		return fmt.Errorf("coach.max_tokens must be positive (got %d)", c.Coach.MaxTokens)
	}
	if c.Import.Debounce <= 0 {
		return fmt.Errorf("import.debounce must be positive (got %s)", c.Import.Debounce)
	}
	return nil
}
