package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const kvSchemaSQL = `
CREATE TABLE IF NOT EXISTS client_storage (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (namespace, key)
);

CREATE INDEX IF NOT EXISTS idx_client_storage_updated ON client_storage(updated_at);
`

// SQLite holds per-client key/value namespaces in one database. Each browser
// talking to the front-end gets its own namespace.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database at dsn and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if _, err := conn.Exec(kvSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Namespace returns a Provider scoped to ns.
func (s *SQLite) Namespace(ns string) Provider {
	return &namespace{db: s, ns: ns}
}

// Purge deletes every key not written since before. It returns the number of
// rows removed.
func (s *SQLite) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM client_storage WHERE updated_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("storage: purge: %w", err)
	}
	return res.RowsAffected()
}

type namespace struct {
	db *SQLite
	ns string
}

func (n *namespace) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := n.db.conn.QueryRowContext(ctx,
		`SELECT value FROM client_storage WHERE namespace = ? AND key = ?`, n.ns, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: get %s: %w", key, err)
	}
	return v, true, nil
}

func (n *namespace) Set(ctx context.Context, key, value string) error {
	_, err := n.db.conn.ExecContext(ctx, `
		INSERT INTO client_storage (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, n.ns, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage: set %s: %w", key, err)
	}
	return nil
}

func (n *namespace) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := n.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM client_storage WHERE namespace = ? AND key = ?`, n.ns, k); err != nil {
			return fmt.Errorf("storage: remove %s: %w", k, err)
		}
	}
	return tx.Commit()
}
