package pages

import (
	"context"
	"net/http"

	"github.com/starford/brightline/internal/apiclient"
	"github.com/starford/brightline/internal/models"
)

// fakeBackend answers from canned results and records what it was asked.
type fakeBackend struct {
	posts      apiclient.Result[apiclient.PostPage]
	post       apiclient.Result[models.Post]
	byCategory apiclient.Result[apiclient.CategoryPosts]
	related    apiclient.Result[[]models.Post]
	featured   apiclient.Result[[]models.Post]
	categories apiclient.Result[[]models.Category]
	saved      apiclient.Result[models.Post]

	lastQuery   apiclient.PostQuery
	lastID      int64
	lastInput   *apiclient.PostInput
	lastImage   *apiclient.FilePart
	createCalls int
	updateCalls int
}

func (f *fakeBackend) GetPosts(_ context.Context, q apiclient.PostQuery) apiclient.Result[apiclient.PostPage] {
	f.lastQuery = q
	return f.posts
}

func (f *fakeBackend) GetPostBySlug(context.Context, string) apiclient.Result[models.Post] {
	return f.post
}

func (f *fakeBackend) GetPost(_ context.Context, id int64) apiclient.Result[models.Post] {
	f.lastID = id
	return f.post
}

func (f *fakeBackend) GetPostsByCategory(context.Context, string, int, int) apiclient.Result[apiclient.CategoryPosts] {
	return f.byCategory
}

func (f *fakeBackend) GetRelatedPosts(context.Context, int64, int) apiclient.Result[[]models.Post] {
	return f.related
}

func (f *fakeBackend) GetFeaturedPosts(context.Context, int) apiclient.Result[[]models.Post] {
	return f.featured
}

func (f *fakeBackend) GetCategories(context.Context) apiclient.Result[[]models.Category] {
	return f.categories
}

func (f *fakeBackend) CreatePost(_ context.Context, in apiclient.PostInput, image *apiclient.FilePart) apiclient.Result[models.Post] {
	f.createCalls++
	f.lastInput = &in
	f.lastImage = image
	return f.saved
}

func (f *fakeBackend) UpdatePost(_ context.Context, id int64, in apiclient.PostInput, image *apiclient.FilePart) apiclient.Result[models.Post] {
	f.updateCalls++
	f.lastID = id
	f.lastInput = &in
	f.lastImage = image
	return f.saved
}

func ok[T any](v T) apiclient.Result[T] {
	return apiclient.Result[T]{Success: true, Data: v, Status: http.StatusOK}
}

func fail[T any](status int, msg string) apiclient.Result[T] {
	return apiclient.Result[T]{Message: msg, Kind: apiclient.KindDomain, Status: status}
}
