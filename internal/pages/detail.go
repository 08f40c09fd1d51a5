package pages

import (
	"context"
	"log/slog"

	"github.com/starford/brightline/internal/models"
)

// ErrMsgPostNotFound is shown when a post cannot be loaded.
const ErrMsgPostNotFound = "Post not found"

const relatedLimit = 3

// PostDetail backs the single post page.
type PostDetail struct {
	Post    *models.Post
	Related []models.Post
	Error   string
	Loading bool
}

// LoadPost fetches the published post slug and its related posts. Any
// failure sets Error and is returned; related posts are optional and fail
// silently.
func (d *PostDetail) LoadPost(ctx context.Context, b Backend, slug string, logger *slog.Logger) error {
	d.Loading = true
	defer func() { d.Loading = false }()

	res := b.GetPostBySlug(ctx, slug)
	if !res.Success {
		logFailure(logger, "post", res)
		d.Post = nil
		d.Related = nil
		d.Error = ErrMsgPostNotFound
		return res.Err()
	}
	post := res.Data
	d.Post = &post
	d.Error = ""

	if len(post.RelatedPosts) > 0 {
		d.Related = post.RelatedPosts
		return nil
	}
	rel := b.GetRelatedPosts(ctx, post.ID, relatedLimit)
	if !rel.Success {
		logFailure(logger, "related posts", rel)
		d.Related = []models.Post{}
		return nil
	}
	d.Related = rel.Data
	return nil
}

// Home backs the landing page: the featured posts teaser.
type Home struct {
	Featured []models.Post
	Loading  bool
}

// Load fetches up to limit featured posts, keeping the previous ones on
// failure.
func (h *Home) Load(ctx context.Context, b Backend, limit int, logger *slog.Logger) error {
	h.Loading = true
	defer func() { h.Loading = false }()

	res := b.GetFeaturedPosts(ctx, limit)
	if !res.Success {
		logFailure(logger, "featured posts", res)
		return res.Err()
	}
	h.Featured = res.Data
	return nil
}
