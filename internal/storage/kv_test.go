package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// exerciseProvider runs the same contract checks against any Provider.
func exerciseProvider(t *testing.T, p Provider) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := p.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want absent", ok, err)
	}
	if err := p.Set(ctx, "auth_token", "tok"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := p.Set(ctx, "user", `{"id":1}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := p.Get(ctx, "auth_token")
	if err != nil || !ok || v != "tok" {
		t.Fatalf("Get(auth_token) = %q ok=%v err=%v", v, ok, err)
	}
	if err := p.Set(ctx, "auth_token", "tok2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if v, _, _ := p.Get(ctx, "auth_token"); v != "tok2" {
		t.Errorf("overwrite: got %q", v)
	}
	if err := p.Remove(ctx, "auth_token", "user", "never-set"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	for _, k := range []string{"auth_token", "user"} {
		if _, ok, _ := p.Get(ctx, k); ok {
			t.Errorf("%s still present after Remove", k)
		}
	}
}

func TestMemoryProvider(t *testing.T) {
	exerciseProvider(t, NewMemory())
}

func TestJSONFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	p, err := NewJSONFile(path)
	if err != nil {
		t.Fatalf("NewJSONFile: %v", err)
	}
	exerciseProvider(t, p)

	if err := p.Set(context.Background(), "k", "v"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}

	// A second handle sees the persisted value.
	p2, _ := NewJSONFile(path)
	if v, ok, _ := p2.Get(context.Background(), "k"); !ok || v != "v" {
		t.Errorf("reopen: got %q ok=%v", v, ok)
	}
}

func TestJSONFileProvider_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, _ := NewJSONFile(path)
	if _, _, err := p.Get(context.Background(), "k"); err == nil {
		t.Error("expected decode error for corrupt file")
	}
}

func testSQLite(t *testing.T) *SQLite {
	t.Helper()
	f, err := os.CreateTemp("", "brightline-kv-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := OpenSQLite(f.Name())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteNamespace(t *testing.T) {
	db := testSQLite(t)
	exerciseProvider(t, db.Namespace("client-a"))
}

func TestSQLiteNamespacesAreIsolated(t *testing.T) {
	db := testSQLite(t)
	ctx := context.Background()
	a, b := db.Namespace("a"), db.Namespace("b")

	if err := a.Set(ctx, "auth_token", "token-a"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := b.Get(ctx, "auth_token"); ok {
		t.Error("namespace b should not see namespace a's key")
	}
	if err := b.Remove(ctx, "auth_token"); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := a.Get(ctx, "auth_token"); !ok || v != "token-a" {
		t.Errorf("remove in b affected a: %q ok=%v", v, ok)
	}
}

func TestSQLitePurge(t *testing.T) {
	db := testSQLite(t)
	ctx := context.Background()
	_ = db.Namespace("old").Set(ctx, "k", "v")

	n, err := db.Purge(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d rows, want 1", n)
	}
	if _, ok, _ := db.Namespace("old").Get(ctx, "k"); ok {
		t.Error("purged key still present")
	}
}
