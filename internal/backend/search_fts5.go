//go:build sqlite_fts5

package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/starford/brightline/internal/models"
)

func initFTS(conn *sqlx.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS posts_fts USING fts5(
			post_id UNINDEXED,
			title,
			excerpt,
			content,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sqlx.Tx, rec postRecord) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM posts_fts WHERE post_id = ?`, rec.ID)
	_, err := tx.ExecContext(ctx, `INSERT INTO posts_fts (post_id, title, excerpt, content, tags) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.Excerpt, rec.Content, strings.NewReplacer(`[`, ``, `]`, ``, `"`, ``, `,`, ` `).Replace(rec.Tags))
	if err != nil {
		return fmt.Errorf("backend: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sqlx.Tx, id int64) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM posts_fts WHERE post_id = ?`, id)
	return nil
}

// Search runs an FTS5 match over published posts, best match first.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]models.Post, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []postRow
	err := db.conn.SelectContext(ctx, &rows, `SELECT`+postColumns+postFrom+`
		JOIN posts_fts ON posts_fts.post_id = p.id
		WHERE p.status = 'published' AND posts_fts MATCH ?
		ORDER BY posts_fts.rank
		LIMIT ?`, ftsQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("backend: search: %w", err)
	}
	return rowsToPosts(rows), nil
}

// ftsQuery quotes each term so user input cannot use FTS syntax.
func ftsQuery(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}
