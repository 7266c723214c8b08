package config

import (
	"os"
	"time"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:   "127.0.0.1:8787",
			DBPath: ".goals/goals.db",
			Driver: "sqlite",
		},
		Client: ClientConfig{
			URL: "http://127.0.0.1:8787",
		},
		Sync: SyncConfig{
			BaseDelay:  2 * time.Second,
			MaxRetries: 5,
			ProbeTable: "app_meta",
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Coach: CoachConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 1024,
		},
		Import: ImportConfig{
			Dir:      ".goals/inbox",
			Debounce: 250 * time.Millisecond,
		},
	}
}

// defaults flattens DefaultConfig into viper keys.
func defaults() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"server.addr":      d.Server.Addr,
		"server.db_path":   d.Server.DBPath,
		"server.driver":    d.Server.Driver,
		"client.url":       d.Client.URL,
		"client.token":     d.Client.Token,
		"sync.base_delay":  d.Sync.BaseDelay,
		"sync.max_retries": d.Sync.MaxRetries,
		"sync.probe_table": d.Sync.ProbeTable,
		"log.file":         d.Log.File,
		"log.max_size_mb":  d.Log.MaxSizeMB,
		"log.max_backups":  d.Log.MaxBackups,
		"log.max_age_days": d.Log.MaxAgeDays,
		"coach.api_key":    d.Coach.APIKey,
		"coach.model":      d.Coach.Model,
		"coach.max_tokens": d.Coach.MaxTokens,
		"import.dir":       d.Import.Dir,
		"import.debounce":  d.Import.Debounce,
	}
}

// WriteDefault writes a commented configuration template to path.
func WriteDefault(path string) error {
	content := `# goals configuration
# Every key can be overridden with GOALS_<SECTION>_<KEY>, e.g. GOALS_CLIENT_TOKEN.

# Backend started by "goals serve"
server:
  addr: 127.0.0.1:8787
  db_path: .goals/goals.db
  driver: sqlite  # "sqlite" or "libsql" (libsql builds only)

# Where client commands connect
client:
  url: http://127.0.0.1:8787
  token: ""  # issue one with "goals token issue <user>"

# Fetch retries: delay doubles from base_delay, giving up after max_retries
sync:
  base_delay: 2s
  max_retries: 5
  probe_table: app_meta

# Logs go to stderr unless file is set
log:
  file: ""
  max_size_mb: 10
  max_backups: 3
  max_age_days: 28

# Coaching assistant ("goals coach"); api_key may come from ANTHROPIC_API_KEY
coach:
  api_key: ""
  model: claude-sonnet-4-5
  max_tokens: 1024

# Goal-file inbox ("goals import --watch")
import:
  dir: .goals/inbox
  debounce: 250ms
`
	return os.WriteFile(path, []byte(content), 0644)
}
