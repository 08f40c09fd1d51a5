package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/brightline/pkg/config"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
}

func TestWebConfig_BackendURL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Web.BackendURL = "not a url"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid backend url should fail")
	}
	if !strings.HasPrefix(err.Error(), "web:") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBackendConfig_AdminSeed(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Backend.Admin = AdminConfig{Username: "admin", Password: "short"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("short admin password should fail")
	}

	cfg.Backend.Admin.Password = "long-enough-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid admin seed should pass: %v", err)
	}

	cfg.Backend.Admin = AdminConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("no admin seed should pass: %v", err)
	}
}

func TestBackendConfig_TokenTTL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Backend.TokenTTL = time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("token ttl under a minute should fail")
	}
}

func TestImporterConfig_WatchNeedsDir(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Importer.Dir = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty dir without watch should pass: %v", err)
	}
	cfg.Importer.Watch = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("watch without dir should fail")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("BRIGHTLINE_ADMIN_PASSWORD", "from-the-environment")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  log_level: debug
  http:
    port: 9000
web:
  backend_url: https://api.example.com/api
  request_timeout: 5s
backend:
  embedded: true
  token_ttl: 2h
  admin:
    username: admin
    password: ${BRIGHTLINE_ADMIN_PASSWORD}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.HTTP.Address() != ":9000" {
		t.Errorf("address = %q", cfg.App.HTTP.Address())
	}
	if cfg.Web.RequestTimeout != 5*time.Second || cfg.Backend.TokenTTL != 2*time.Hour {
		t.Errorf("durations = %v, %v", cfg.Web.RequestTimeout, cfg.Backend.TokenTTL)
	}
	if cfg.Backend.Admin.Password != "from-the-environment" {
		t.Errorf("password = %q", cfg.Backend.Admin.Password)
	}
	if !cfg.Backend.Embedded || cfg.Web.SessionDB != "./data/sessions.db" {
		t.Errorf("defaults not kept: %+v", cfg.Web)
	}
}
