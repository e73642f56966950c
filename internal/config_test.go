package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/shatag/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Verify.Jobs != 1 || cfg.History.Enabled || cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero jobs", func(c *Config) { c.Verify.Jobs = 0 }},
		{"bad log format", func(c *Config) { c.App.LogFormat = "xml" }},
		{"history without path", func(c *Config) { c.History.Enabled = true; c.History.Path = "" }},
		{"empty serve root", func(c *Config) { c.Serve.Root = "" }},
		{"port out of range", func(c *Config) { c.Serve.HTTP.Port = 70000 }},
		{"zero debounce", func(c *Config) { c.Watch.Debounce = 0 }},
		{"empty watch root", func(c *Config) { c.Watch.Roots = []string{""} }},
		{"token without value", func(c *Config) { c.Auth.Mode = AuthModeToken }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfigFromYAML(t *testing.T) {
	t.Setenv("SHATAG_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `app:
  log_level: debug
  log_format: json
verify:
  jobs: 4
  recursive: true
history:
  enabled: true
  path: /var/lib/shatag/history.db
watch:
  roots: [/srv/photos]
  debounce: 2s
auth:
  mode: token
  token: ${SHATAG_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.LogLevel != slog.LevelDebug || cfg.App.LogFormat != LogFormatJSON {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Verify.Jobs != 4 || !cfg.Verify.Recursive {
		t.Errorf("verify = %+v", cfg.Verify)
	}
	if cfg.Watch.Debounce != 2*time.Second || len(cfg.Watch.Roots) != 1 {
		t.Errorf("watch = %+v", cfg.Watch)
	}
	if cfg.Auth.Token != "s3cret" || !cfg.Auth.AuthEnabled() {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Serve.HTTP.Port != 8080 {
		t.Errorf("unset port lost its default: %d", cfg.Serve.HTTP.Port)
	}
}
