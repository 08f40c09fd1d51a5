package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/brightline/internal/apperr"
	"github.com/starford/brightline/internal/models"
)

type categoryRow struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Slug        string    `db:"slug"`
	Description string    `db:"description"`
	PostCount   int       `db:"post_count"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r categoryRow) model() models.Category {
	return models.Category{
		ID:          r.ID,
		Name:        r.Name,
		Slug:        r.Slug,
		Description: r.Description,
		PostCount:   r.PostCount,
		CreatedAt:   r.CreatedAt,
	}
}

// Post counts only include published posts.
const categorySelect = `
	SELECT c.id, c.name, c.slug, c.description, c.created_at,
	       (SELECT COUNT(*) FROM posts p WHERE p.category_id = c.id AND p.status = 'published') AS post_count
	FROM categories c`

// ListCategories returns every category ordered by name.
func (db *DB) ListCategories(ctx context.Context) ([]models.Category, error) {
	var rows []categoryRow
	if err := db.conn.SelectContext(ctx, &rows, categorySelect+` ORDER BY c.name COLLATE NOCASE`); err != nil {
		return nil, fmt.Errorf("backend: list categories: %w", err)
	}
	out := make([]models.Category, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// GetCategory returns category id.
func (db *DB) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	return db.getCategory(ctx, `c.id = ?`, id)
}

// GetCategoryBySlug returns the category with slug.
func (db *DB) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	return db.getCategory(ctx, `c.slug = ?`, slug)
}

func (db *DB) getCategory(ctx context.Context, cond string, arg any) (*models.Category, error) {
	var row categoryRow
	if err := db.conn.GetContext(ctx, &row, categorySelect+` WHERE `+cond, arg); err != nil {
		if notFound(err) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("backend: get category: %w", err)
	}
	c := row.model()
	return &c, nil
}

// InsertCategory stores a new category and returns its id.
func (db *DB) InsertCategory(ctx context.Context, name, slug, description string, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO categories (name, slug, description, created_at) VALUES (?, ?, ?, ?)`,
		name, slug, description, now)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("backend: insert category: %w", apperr.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("backend: insert category: %w", err)
	}
	return res.LastInsertId()
}

// UpdateCategory replaces category id.
func (db *DB) UpdateCategory(ctx context.Context, id int64, name, slug, description string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE categories SET name = ?, slug = ?, description = ? WHERE id = ?`,
		name, slug, description, id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("backend: update category: %w", apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("backend: update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteCategory removes category id. Its posts become uncategorized.
func (db *DB) DeleteCategory(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("backend: delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
