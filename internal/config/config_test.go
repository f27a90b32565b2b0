package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setRequiredKeys sets the two secrets every load needs.
func setRequiredKeys(t *testing.T) {
	t.Helper()
	t.Setenv("ADMIN_API_KEY", "admin-secret")
	t.Setenv("WIDGET_API_KEY", "widget-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredKeys(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Listen != ":8080" {
		t.Errorf("default listen = %q, want :8080", cfg.Server.Listen)
	}
	if cfg.HTTP.TimeoutSeconds != 30 {
		t.Errorf("default timeout = %d, want 30", cfg.HTTP.TimeoutSeconds)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default log level = %q, want info", cfg.Logging.Level)
	}
	if !cfg.OriginAllowed("https://anything.example") {
		t.Error("default origin list should allow every origin")
	}
}

func TestLoadMissingAdminKey(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "")
	t.Setenv("WIDGET_API_KEY", "widget-secret")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing admin key")
	}
}

func TestLoadEqualKeysRejected(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "same-secret")
	t.Setenv("WIDGET_API_KEY", "same-secret")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when widget key equals admin key")
	}
	if !strings.Contains(err.Error(), "must differ") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	setRequiredKeys(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example, https://widget.example")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "5")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SES_REGION", "eu-west-1")
	t.Setenv("SES_SENDER", "quotes@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Listen != ":9090" {
		t.Errorf("listen = %q, want :9090", cfg.Server.Listen)
	}
	if cfg.HTTP.TimeoutSeconds != 5 {
		t.Errorf("timeout = %d, want 5", cfg.HTTP.TimeoutSeconds)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
	if !cfg.SESConfigured() {
		t.Error("SESConfigured() = false, want true")
	}

	if cfg.OriginAllowed("https://evil.example") {
		t.Error("unlisted origin should be rejected")
	}
	if !cfg.OriginAllowed("https://widget.example") {
		t.Error("listed origin should be allowed")
	}
}

func TestLoadFromFile(t *testing.T) {
	setRequiredKeys(t)

	yaml := `
server:
  listen: ":7000"
workflow:
  base_url: "https://engine.example/api/1.1"
  api_token: "wf-token"
logging:
  level: "warn"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() returned error: %v", err)
	}

	if cfg.Server.Listen != ":7000" {
		t.Errorf("listen = %q, want :7000", cfg.Server.Listen)
	}
	if !cfg.WorkflowConfigured() {
		t.Error("WorkflowConfigured() = false, want true")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q, want warn", cfg.Logging.Level)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	setRequiredKeys(t)
	t.Setenv("LISTEN", ":6000")

	yaml := "server:\n  listen: \":7000\"\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() returned error: %v", err)
	}
	if cfg.Server.Listen != ":6000" {
		t.Errorf("env var should override file value, got %q", cfg.Server.Listen)
	}
}
