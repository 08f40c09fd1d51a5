package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/starford/brightline/internal/apperr"
	"github.com/starford/brightline/internal/models"
)

const postColumns = `
	p.id, p.title, p.slug, p.content, p.excerpt, p.featured_image,
	p.category_id,
	COALESCE(c.name, '') AS category_name,
	COALESCE(c.slug, '') AS category_slug,
	p.status, p.views, p.meta_title, p.meta_description,
	COALESCE(NULLIF(u.name, ''), u.username, '') AS author_name,
	p.tags, p.created_at, p.updated_at, p.published_at`

const postFrom = `
	FROM posts p
	LEFT JOIN categories c ON c.id = p.category_id
	LEFT JOIN users u ON u.id = p.author_id`

// postRow is one row of the posts query.
type postRow struct {
	ID              int64         `db:"id"`
	Title           string        `db:"title"`
	Slug            string        `db:"slug"`
	Content         string        `db:"content"`
	Excerpt         string        `db:"excerpt"`
	FeaturedImage   string        `db:"featured_image"`
	CategoryID      sql.NullInt64 `db:"category_id"`
	CategoryName    string        `db:"category_name"`
	CategorySlug    string        `db:"category_slug"`
	Status          string        `db:"status"`
	Views           int           `db:"views"`
	MetaTitle       string        `db:"meta_title"`
	MetaDescription string        `db:"meta_description"`
	AuthorName      string        `db:"author_name"`
	Tags            string        `db:"tags"`
	CreatedAt       time.Time     `db:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at"`
	PublishedAt     sql.NullTime  `db:"published_at"`
}

func (r postRow) model() models.Post {
	p := models.Post{
		ID:              r.ID,
		Title:           r.Title,
		Slug:            r.Slug,
		Content:         r.Content,
		Excerpt:         r.Excerpt,
		FeaturedImage:   r.FeaturedImage,
		CategoryName:    r.CategoryName,
		CategorySlug:    r.CategorySlug,
		Status:          models.PostStatus(r.Status),
		Views:           r.Views,
		MetaTitle:       r.MetaTitle,
		MetaDescription: r.MetaDescription,
		AuthorName:      r.AuthorName,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		Tags:            []string{},
	}
	if r.CategoryID.Valid {
		id := r.CategoryID.Int64
		p.CategoryID = &id
	}
	if r.PublishedAt.Valid {
		t := r.PublishedAt.Time
		p.PublishedAt = &t
	}
	_ = json.Unmarshal([]byte(r.Tags), &p.Tags)
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p
}

func rowsToPosts(rows []postRow) []models.Post {
	out := make([]models.Post, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out
}

// PostFilter selects a page of posts. Empty fields do not filter.
type PostFilter struct {
	Status       models.PostStatus
	CategorySlug string
	Search       string
	Page         int
	Limit        int
}

func (f PostFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "p.status = ?")
		args = append(args, string(f.Status))
	}
	if f.CategorySlug != "" {
		conds = append(conds, "c.slug = ?")
		args = append(args, f.CategorySlug)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		conds = append(conds, "(p.title LIKE ? OR p.excerpt LIKE ? OR p.content LIKE ? OR p.tags LIKE ?)")
		args = append(args, like, like, like, like)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListPosts returns one page of posts, newest first, and the total count.
func (db *DB) ListPosts(ctx context.Context, f PostFilter) ([]models.Post, int, error) {
	where, args := f.where()

	var total int
	if err := db.conn.GetContext(ctx, &total, `SELECT COUNT(*)`+postFrom+where, args...); err != nil {
		return nil, 0, fmt.Errorf("backend: count posts: %w", err)
	}

	page := models.NewPagination(f.Page, f.Limit, total)
	var rows []postRow
	q := `SELECT` + postColumns + postFrom + where +
		` ORDER BY COALESCE(p.published_at, p.created_at) DESC, p.id DESC LIMIT ? OFFSET ?`
	if err := db.conn.SelectContext(ctx, &rows, q, append(args, page.Limit, page.Offset())...); err != nil {
		return nil, 0, fmt.Errorf("backend: list posts: %w", err)
	}
	return rowsToPosts(rows), total, nil
}

// GetPost returns the post with id.
func (db *DB) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	return db.getPost(ctx, `p.id = ?`, id)
}

// GetPostBySlug returns the post with slug.
func (db *DB) GetPostBySlug(ctx context.Context, slug string) (*models.Post, error) {
	return db.getPost(ctx, `p.slug = ?`, slug)
}

func (db *DB) getPost(ctx context.Context, cond string, arg any) (*models.Post, error) {
	var row postRow
	err := db.conn.GetContext(ctx, &row, `SELECT`+postColumns+postFrom+` WHERE `+cond, arg)
	if err != nil {
		if notFound(err) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("backend: get post: %w", err)
	}
	p := row.model()
	return &p, nil
}

// SlugTaken reports whether a post other than exceptID uses slug.
func (db *DB) SlugTaken(ctx context.Context, slug string, exceptID int64) (bool, error) {
	var n int
	err := db.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM posts WHERE slug = ? AND id != ?`, slug, exceptID)
	if err != nil {
		return false, fmt.Errorf("backend: check slug: %w", err)
	}
	return n > 0, nil
}

// postRecord is the writable part of a post.
type postRecord struct {
	ID              int64         `db:"id"`
	Title           string        `db:"title"`
	Slug            string        `db:"slug"`
	Content         string        `db:"content"`
	Excerpt         string        `db:"excerpt"`
	FeaturedImage   string        `db:"featured_image"`
	CategoryID      sql.NullInt64 `db:"category_id"`
	Status          string        `db:"status"`
	MetaTitle       string        `db:"meta_title"`
	MetaDescription string        `db:"meta_description"`
	AuthorID        sql.NullInt64 `db:"author_id"`
	Tags            string        `db:"tags"`
	CreatedAt       time.Time     `db:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at"`
	PublishedAt     sql.NullTime  `db:"published_at"`
}

// InsertPost stores a new post and returns its id.
func (db *DB) InsertPost(ctx context.Context, rec postRecord) (int64, error) {
	var id int64
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO posts (title, slug, content, excerpt, featured_image, category_id,
				status, meta_title, meta_description, author_id, tags,
				created_at, updated_at, published_at)
			VALUES (:title, :slug, :content, :excerpt, :featured_image, :category_id,
				:status, :meta_title, :meta_description, :author_id, :tags,
				:created_at, :updated_at, :published_at)`, rec)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("backend: insert post: %w", apperr.ErrAlreadyExists)
			}
			return fmt.Errorf("backend: insert post: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("backend: insert post id: %w", err)
		}
		rec.ID = id
		return ftsUpsert(ctx, tx, rec)
	})
	return id, err
}

// UpdatePost replaces the writable fields of post rec.ID.
func (db *DB) UpdatePost(ctx context.Context, rec postRecord) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			UPDATE posts SET
				title            = :title,
				slug             = :slug,
				content          = :content,
				excerpt          = :excerpt,
				featured_image   = :featured_image,
				category_id      = :category_id,
				status           = :status,
				meta_title       = :meta_title,
				meta_description = :meta_description,
				tags             = :tags,
				updated_at       = :updated_at,
				published_at     = :published_at
			WHERE id = :id`, rec)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("backend: update post: %w", apperr.ErrAlreadyExists)
			}
			return fmt.Errorf("backend: update post: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.ErrNotFound
		}
		return ftsUpsert(ctx, tx, rec)
	})
}

// DeletePost removes post id.
func (db *DB) DeletePost(ctx context.Context, id int64) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("backend: delete post: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.ErrNotFound
		}
		return ftsDelete(ctx, tx, id)
	})
}

// IncrementViews adds one view to post id.
func (db *DB) IncrementViews(ctx context.Context, id int64) error {
	if _, err := db.conn.ExecContext(ctx, `UPDATE posts SET views = views + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("backend: increment views: %w", err)
	}
	return nil
}

// FeaturedPosts returns the most viewed published posts.
func (db *DB) FeaturedPosts(ctx context.Context, limit int) ([]models.Post, error) {
	var rows []postRow
	err := db.conn.SelectContext(ctx, &rows, `SELECT`+postColumns+postFrom+`
		WHERE p.status = 'published'
		ORDER BY p.views DESC, p.published_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("backend: featured posts: %w", err)
	}
	return rowsToPosts(rows), nil
}

// RelatedCandidates returns recent published posts other than id.
func (db *DB) RelatedCandidates(ctx context.Context, id int64, limit int) ([]models.Post, error) {
	var rows []postRow
	err := db.conn.SelectContext(ctx, &rows, `SELECT`+postColumns+postFrom+`
		WHERE p.status = 'published' AND p.id != ?
		ORDER BY p.published_at DESC
		LIMIT ?`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("backend: related candidates: %w", err)
	}
	return rowsToPosts(rows), nil
}

// PostStats counts posts by status.
type PostStats struct {
	Total     int `db:"total" json:"total"`
	Published int `db:"published" json:"published"`
	Drafts    int `db:"drafts" json:"drafts"`
	Views     int `db:"views" json:"views"`
}

// Stats returns post counters.
func (db *DB) Stats(ctx context.Context) (PostStats, error) {
	var s PostStats
	err := db.conn.GetContext(ctx, &s, `
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(status = 'published'), 0) AS published,
		       COALESCE(SUM(status = 'draft'), 0) AS drafts,
		       COALESCE(SUM(views), 0) AS views
		FROM posts`)
	if err != nil {
		return PostStats{}, fmt.Errorf("backend: stats: %w", err)
	}
	return s, nil
}
