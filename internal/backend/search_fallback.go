//go:build !sqlite_fts5

package backend

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/starford/brightline/internal/models"
)

func initFTS(_ *sqlx.DB) error {
	// FTS5 not available; search uses LIKE over the posts table.
	return nil
}

func ftsUpsert(_ context.Context, _ *sqlx.Tx, _ postRecord) error { return nil }

func ftsDelete(_ context.Context, _ *sqlx.Tx, _ int64) error { return nil }

// Search matches published posts by title, excerpt, content or tags.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]models.Post, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	var rows []postRow
	err := db.conn.SelectContext(ctx, &rows, `SELECT`+postColumns+postFrom+`
		WHERE p.status = 'published'
		  AND (p.title LIKE ? OR p.excerpt LIKE ? OR p.content LIKE ? OR p.tags LIKE ?)
		ORDER BY (p.title LIKE ?) DESC, p.published_at DESC
		LIMIT ?`, like, like, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("backend: search: %w", err)
	}
	return rowsToPosts(rows), nil
}
