package internal

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestDefaultComponents(t *testing.T) {
	cfg := NewDefaultConfig()
	got := defaultComponents(cfg)
	if len(got) != 1 || got[0] != ComponentWeb {
		t.Errorf("components = %v, want [web]", got)
	}

	cfg.Backend.Embedded = true
	cfg.Importer.Watch = true
	app := &application{components: defaultComponents(cfg)}
	for _, c := range []Component{ComponentWeb, ComponentBackend, ComponentImporter} {
		if !app.enabled(c) {
			t.Errorf("%s not enabled", c)
		}
	}
}

func TestWithComponents(t *testing.T) {
	app := &application{}
	WithComponents(ComponentBackend)(app)
	if !app.enabled(ComponentBackend) || app.enabled(ComponentWeb) {
		t.Errorf("components = %v", app.components)
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "brightline.log")
	logger, closeLog := NewLogger(ApplicationConfig{LogFile: path}, os.Stdout)
	logger.Info("hello", "answer", 42)
	if err := closeLog(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) || !strings.Contains(string(data), `"answer":42`) {
		t.Errorf("log file = %s", data)
	}
}

func TestOpenClientSession(t *testing.T) {
	cfg := NewDefaultConfig().Client
	cfg.SessionFile = filepath.Join(t.TempDir(), "session.json")

	cs, err := OpenClientSession(context.Background(), cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}
	if err := cs.RequireAuth(); err != ErrNotSignedIn {
		t.Errorf("RequireAuth = %v, want ErrNotSignedIn", err)
	}
}
