package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: client.token is GOALS_CLIENT_TOKEN.
const EnvPrefix = "GOALS"

// Options locates configuration sources. Zero values pick the standard
// locations.
type Options struct {
	// File replaces the global and project files when set (--config)
	File string

	// EnvFile is loaded into the environment before overrides are read (default: .env)
	EnvFile string

	// Home and Dir anchor the global and project files (default: user home, cwd)
	Home string
	Dir  string
}

// Load merges defaults, ~/.goals/config.yaml, ./.goals/config.yaml, the
// .env file and GOALS_* variables, later sources winning.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}
	v.SetConfigType("yaml")

	files := []string{opts.File}
	if opts.File == "" {
		files = []string{GlobalConfigPath(opts.Home), ProjectConfigPath(opts.Dir)}
	}
	for _, path := range files {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) && opts.File == "" {
				continue
			}
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Coach.APIKey == "" {
		cfg.Coach.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GlobalConfigPath returns the per-user config file under home, or under
// the user's home directory when home is empty.
func GlobalConfigPath(home string) string {
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(home, ".goals", "config.yaml")
}

// ProjectConfigPath returns the project config file under dir, or under
// the working directory when dir is empty.
func ProjectConfigPath(dir string) string {
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return ""
		}
	}
	return filepath.Join(dir, ".goals", "config.yaml")
}
