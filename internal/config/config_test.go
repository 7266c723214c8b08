package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// isolate points every source at empty temp dirs.
func isolate(t *testing.T) Options {
	t.Helper()
	tmp := t.TempDir()
	return Options{
		Home:    filepath.Join(tmp, "home"),
		Dir:     filepath.Join(tmp, "project"),
		EnvFile: filepath.Join(tmp, "missing.env"),
	}
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Sync.BaseDelay != 2*time.Second {
		t.Errorf("Expected base delay 2s, got %s", cfg.Sync.BaseDelay)
	}
	if cfg.Sync.MaxRetries != 5 {
		t.Errorf("Expected 5 retries, got %d", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.ProbeTable != "app_meta" {
		t.Errorf("Expected probe table app_meta, got %q", cfg.Sync.ProbeTable)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() is invalid: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg, err := Load(isolate(t))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	want := DefaultConfig()
	if *cfg != *want {
		t.Errorf("Load() = %+v, want %+v", cfg, want)
	}
}

func TestLoad_Layering(t *testing.T) {
	opts := isolate(t)
	writeConfig(t, GlobalConfigPath(opts.Home), `
client:
  url: http://global:8787
  token: global-token
sync:
  max_retries: 2
`)
	writeConfig(t, ProjectConfigPath(opts.Dir), `
client:
  url: http://project:8787
sync:
  base_delay: 500ms
`)
	t.Setenv("GOALS_CLIENT_TOKEN", "env-token")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Client.URL != "http://project:8787" {
		t.Errorf("client.url = %q, want project value", cfg.Client.URL)
	}
	if cfg.Client.Token != "env-token" {
		t.Errorf("client.token = %q, want env value", cfg.Client.Token)
	}
	if cfg.Sync.MaxRetries != 2 {
		t.Errorf("sync.max_retries = %d, want global value", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.BaseDelay != 500*time.Millisecond {
		t.Errorf("sync.base_delay = %s, want 500ms", cfg.Sync.BaseDelay)
	}
	if cfg.Coach.APIKey != "sk-test" {
		t.Errorf("coach.api_key = %q, want ANTHROPIC_API_KEY fallback", cfg.Coach.APIKey)
	}
}

func TestLoad_ExplicitFile(t *testing.T) {
	opts := isolate(t)
	writeConfig(t, ProjectConfigPath(opts.Dir), "server:\n  addr: :1\n")
	opts.File = filepath.Join(t.TempDir(), "custom.yaml")
	writeConfig(t, opts.File, "server:\n  addr: :9999\n")

	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("server.addr = %q, want :9999", cfg.Server.Addr)
	}

	opts.File = filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := Load(opts); err == nil {
		t.Error("Load() with a missing --config file should fail")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	opts := isolate(t)
	opts.EnvFile = filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(opts.EnvFile, []byte("GOALS_IMPORT_DIR=/tmp/inbox\n"), 0644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	// godotenv sets the variable for the process; make sure it is unset afterwards.
	t.Setenv("GOALS_IMPORT_DIR", "")
	os.Unsetenv("GOALS_IMPORT_DIR")

	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Import.Dir != "/tmp/inbox" {
		t.Errorf("import.dir = %q, want value from .env", cfg.Import.Dir)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"driver", "server:\n  driver: postgres\n", "server.driver"},
		{"retries", "sync:\n  max_retries: -1\n", "sync.max_retries"},
		{"delay", "sync:\n  base_delay: 0s\n", "sync.base_delay"},
		{"yaml", "sync: [\n", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := isolate(t)
			writeConfig(t, ProjectConfigPath(opts.Dir), tt.content)
			_, err := Load(opts)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	opts := isolate(t)
	path := ProjectConfigPath(opts.Dir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		t.Fatalf("template is not valid YAML: %v", err)
	}
	for _, section := range []string{"server", "client", "sync", "log", "coach", "import"} {
		if _, ok := raw[section]; !ok {
			t.Errorf("template is missing section %q", section)
		}
	}

	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load() of template failed: %v", err)
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("template does not match defaults:\n got %+v\nwant %+v", cfg, DefaultConfig())
	}
}

func TestOpenLogs(t *testing.T) {
	logs := OpenLogs(LogConfig{})
	if logs.New("sync").Prefix() != "[sync] " {
		t.Errorf("unexpected prefix %q", logs.New("sync").Prefix())
	}
	if err := logs.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "goals.log")
	logs = OpenLogs(LogConfig{File: path, MaxSizeMB: 1})
	logs.New("server").Println("hello")
	if err := logs.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "[server] ") || !strings.Contains(string(data), "hello") {
		t.Errorf("log file = %q", data)
	}
}
