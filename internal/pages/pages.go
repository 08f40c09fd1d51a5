// Package pages holds the view models of the public and admin pages and the
// loaders that fill them from the backend. Read paths degrade to the previous
// state on failure; write paths return the failure so the page can show it.
package pages

import (
	"context"
	"log/slog"

	"github.com/starford/brightline/internal/apiclient"
	"github.com/starford/brightline/internal/models"
)

// Backend is the subset of *apiclient.Client the loaders use.
type Backend interface {
	GetPosts(ctx context.Context, q apiclient.PostQuery) apiclient.Result[apiclient.PostPage]
	GetPostBySlug(ctx context.Context, slug string) apiclient.Result[models.Post]
	GetPost(ctx context.Context, id int64) apiclient.Result[models.Post]
	GetPostsByCategory(ctx context.Context, slug string, page, limit int) apiclient.Result[apiclient.CategoryPosts]
	GetRelatedPosts(ctx context.Context, postID int64, limit int) apiclient.Result[[]models.Post]
	GetFeaturedPosts(ctx context.Context, limit int) apiclient.Result[[]models.Post]
	GetCategories(ctx context.Context) apiclient.Result[[]models.Category]
	CreatePost(ctx context.Context, in apiclient.PostInput, image *apiclient.FilePart) apiclient.Result[models.Post]
	UpdatePost(ctx context.Context, id int64, in apiclient.PostInput, image *apiclient.FilePart) apiclient.Result[models.Post]
}

var _ Backend = (*apiclient.Client)(nil)

func logFailure[T any](logger *slog.Logger, what string, res apiclient.Result[T]) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("load failed",
		slog.String("what", what),
		slog.String("kind", res.Kind.String()),
		slog.Int("status", res.Status),
		slog.String("message", res.Message))
}
