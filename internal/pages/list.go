package pages

import (
	"context"
	"log/slog"

	"github.com/starford/brightline/internal/apiclient"
	"github.com/starford/brightline/internal/models"
)

// DefaultPageSize is the number of posts per listing page.
const DefaultPageSize = 10

// PostList backs the public blog list, category pages and the admin list.
type PostList struct {
	Query      apiclient.PostQuery
	Posts      []models.Post
	Pagination models.Pagination
	Category   *models.Category
	Loading    bool
}

// LoadPosts fetches the page described by q. On failure the previous posts
// and pagination are kept and the failure is returned for callers that
// react to it (for example a rejected token).
func (l *PostList) LoadPosts(ctx context.Context, b Backend, q apiclient.PostQuery, logger *slog.Logger) error {
	l.Loading = true
	defer func() { l.Loading = false }()

	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	l.Query = q

	res := b.GetPosts(ctx, q)
	if !res.Success {
		logFailure(logger, "posts", res)
		return res.Err()
	}
	l.Posts = res.Data.Posts
	l.Pagination = res.Data.Pagination
	return nil
}

// LoadCategory fetches one page of published posts in the category slug.
func (l *PostList) LoadCategory(ctx context.Context, b Backend, slug string, page int, logger *slog.Logger) error {
	l.Loading = true
	defer func() { l.Loading = false }()

	if page < 1 {
		page = 1
	}
	l.Query = apiclient.PostQuery{Page: page, Limit: DefaultPageSize, Category: slug}

	res := b.GetPostsByCategory(ctx, slug, page, DefaultPageSize)
	if !res.Success {
		logFailure(logger, "category posts", res)
		return res.Err()
	}
	cat := res.Data.Category
	l.Category = &cat
	l.Posts = res.Data.Posts
	l.Pagination = res.Data.Pagination
	return nil
}

// PageControl is one pagination button.
type PageControl struct {
	Number int
	Active bool
}

// Controls returns the pagination controls of the loaded page.
func (l *PostList) Controls() []PageControl {
	return PageControls(l.Pagination)
}

// PageControls returns one control per page with the current page active.
func PageControls(p models.Pagination) []PageControl {
	if p.Pages < 1 {
		return nil
	}
	out := make([]PageControl, 0, p.Pages)
	for n := 1; n <= p.Pages; n++ {
		out = append(out, PageControl{Number: n, Active: n == p.Page})
	}
	return out
}
