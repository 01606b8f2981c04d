// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "desk.yaml", `
server:
  http_addr: "0.0.0.0:9000"

database:
  path: "./test.db"

auth:
  jwt_secret: "secret"

upstream:
  base_url: "http://research.local"
  timeout: "45s"

search:
  page_size_ceiling: 25

conversation:
  scope: "finance"
  stale_response: "drop"
  switch_window: "200ms"

directory:
  refresh_window: "50ms"

records:
  enabled: true

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:9000")
	}
	if cfg.Upstream.Timeout != 45*time.Second {
		t.Errorf("Upstream.Timeout = %v, want 45s", cfg.Upstream.Timeout)
	}
	if cfg.Upstream.RecordsURL != "http://research.local" {
		t.Errorf("Upstream.RecordsURL = %q, want base_url fallback", cfg.Upstream.RecordsURL)
	}
	if cfg.Search.PageSizeCeiling != 25 {
		t.Errorf("Search.PageSizeCeiling = %d, want 25", cfg.Search.PageSizeCeiling)
	}
	if cfg.Conversation.StaleResponse != StaleResponseDrop {
		t.Errorf("Conversation.StaleResponse = %q, want %q", cfg.Conversation.StaleResponse, StaleResponseDrop)
	}
	if cfg.Conversation.SwitchWindow != 200*time.Millisecond {
		t.Errorf("Conversation.SwitchWindow = %v, want 200ms", cfg.Conversation.SwitchWindow)
	}
	if cfg.Directory.RefreshWindow != 50*time.Millisecond {
		t.Errorf("Directory.RefreshWindow = %v, want 50ms", cfg.Directory.RefreshWindow)
	}
	if !cfg.Records.Enabled {
		t.Error("Records.Enabled = false, want true")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "desk.toml", `
[database]
path = "./desk.db"

[upstream]
base_url = "http://research.local"
records_url = "http://records.local"

[conversation]
scope = "deals"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "./desk.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Upstream.RecordsURL != "http://records.local" {
		t.Errorf("Upstream.RecordsURL = %q", cfg.Upstream.RecordsURL)
	}
	if cfg.Conversation.Scope != "deals" {
		t.Errorf("Conversation.Scope = %q", cfg.Conversation.Scope)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "desk.yaml", `
database:
  path: ":memory:"
upstream:
  base_url: "http://research.local"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:7420" {
		t.Errorf("Server.HTTPAddr = %q, want default", cfg.Server.HTTPAddr)
	}
	if cfg.Search.PageSizeCeiling != DefaultPageSizeCeiling {
		t.Errorf("Search.PageSizeCeiling = %d, want %d", cfg.Search.PageSizeCeiling, DefaultPageSizeCeiling)
	}
	if cfg.Conversation.StaleResponse != StaleResponsePersist {
		t.Errorf("Conversation.StaleResponse = %q, want persist", cfg.Conversation.StaleResponse)
	}
	if cfg.Conversation.Scope != "all" {
		t.Errorf("Conversation.Scope = %q, want all", cfg.Conversation.Scope)
	}
	if cfg.Upstream.Timeout != 2*time.Minute {
		t.Errorf("Upstream.Timeout = %v, want 2m", cfg.Upstream.Timeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("SCOUT_TEST_SECRET", "from-env")
	t.Setenv("SCOUT_TEST_TOKEN", "tok-123")

	path := writeConfig(t, "desk.yaml", `
database:
  path: ":memory:"
upstream:
  base_url: "http://research.local"
auth:
  jwt_secret: "${SCOUT_TEST_SECRET}"
  token: "${SCOUT_TEST_TOKEN}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("Auth.JWTSecret = %q, want from-env", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.Token != "tok-123" {
		t.Errorf("Auth.Token = %q, want tok-123", cfg.Auth.Token)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing database path",
			content: "upstream:\n  base_url: \"http://x\"\n",
			wantErr: "database.path is required",
		},
		{
			name:    "missing upstream",
			content: "database:\n  path: \"x.db\"\n",
			wantErr: "upstream.base_url is required",
		},
		{
			name:    "bad stale policy",
			content: "database:\n  path: \"x.db\"\nupstream:\n  base_url: \"http://x\"\nconversation:\n  stale_response: \"maybe\"\n",
			wantErr: "conversation.stale_response",
		},
		{
			name:    "ceiling above fixed limit",
			content: "database:\n  path: \"x.db\"\nupstream:\n  base_url: \"http://x\"\nsearch:\n  page_size_ceiling: 500\n",
			wantErr: "page_size_ceiling cannot exceed",
		},
		{
			name:    "records without secret",
			content: "database:\n  path: \"x.db\"\nupstream:\n  base_url: \"http://x\"\nrecords:\n  enabled: true\n",
			wantErr: "auth.jwt_secret is required",
		},
		{
			name:    "tailscale without hostname",
			content: "database:\n  path: \"x.db\"\nupstream:\n  base_url: \"http://x\"\ntailscale:\n  enabled: true\n",
			wantErr: "tailscale.hostname is required",
		},
		{
			name:    "bad duration",
			content: "database:\n  path: \"x.db\"\nupstream:\n  base_url: \"http://x\"\n  timeout: \"soon\"\n",
			wantErr: "upstream.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "desk.yaml", tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
