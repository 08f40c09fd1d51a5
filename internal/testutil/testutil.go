// Package testutil provides shared test helpers: temporary databases and a
// running reference backend with a seeded admin account.
package testutil

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/brightline/internal/backend"
	"github.com/starford/brightline/internal/sse"
	"github.com/starford/brightline/internal/storage"
)

// Seeded admin credentials of TestBackend.
const (
	AdminUsername = "admin"
	AdminPassword = "secret"
)

// Backend is a running reference backend.
type Backend struct {
	Server  *httptest.Server
	Service *backend.Service
	DB      *backend.DB
	Events  *sse.Broker
	Uploads *backend.Uploads
}

// APIURL returns the action endpoint URL.
func (b *Backend) APIURL() string {
	return b.Server.URL + "/api"
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// TestDB creates a temporary backend database that is cleaned up with t.
func TestDB(t *testing.T) *backend.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "brightline-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			os.Remove(dbFile.Name() + suffix)
		}
	})

	db, err := backend.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestKV creates a temporary SQLite key/value store.
func TestKV(t *testing.T) *storage.SQLite {
	t.Helper()
	kv, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kv.Close() })
	return kv
}

// TestBackend starts a reference backend with an admin account seeded from
// AdminUsername and AdminPassword.
func TestBackend(t *testing.T) *Backend {
	t.Helper()
	db := TestDB(t)
	broker := sse.NewBroker(50 * time.Millisecond)
	t.Cleanup(broker.Close)

	logger := DiscardLogger()
	svc := backend.NewService(db,
		backend.WithPublisher(broker),
		backend.WithLogger(logger),
		backend.WithTokenTTL(time.Hour))
	if err := svc.EnsureAdmin(context.Background(), AdminUsername, AdminPassword, "Site Admin", "admin@example.com"); err != nil {
		t.Fatal(err)
	}

	uploads, err := backend.NewUploads(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(backend.NewRouter(svc, uploads, backend.RouterConfig{
		Events:    broker,
		LoginRate: 1000,
		Logger:    logger,
	}))
	t.Cleanup(srv.Close)

	return &Backend{Server: srv, Service: svc, DB: db, Events: broker, Uploads: uploads}
}
