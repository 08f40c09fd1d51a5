package pages

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/brightline/internal/apiclient"
	"github.com/starford/brightline/internal/models"
)

func validDraft() Draft {
	d := NewDraft()
	d.Title = "Hello"
	d.Content = "Body"
	return d
}

func TestLoadForEdit_MissingPost(t *testing.T) {
	b := &fakeBackend{post: fail[models.Post](http.StatusNotFound, "Post not found")}
	e := NewEditor()

	err := e.LoadForEdit(context.Background(), b, 42, nil)

	require.ErrorIs(t, err, ErrPostNotFound)
	assert.Equal(t, "Post not found", err.Error())
	assert.Equal(t, int64(42), b.lastID)
	assert.True(t, e.IsNew())
	assert.False(t, e.Loading)
}

func TestLoadForEdit_Unauthorized(t *testing.T) {
	b := &fakeBackend{post: fail[models.Post](http.StatusUnauthorized, "Unauthorized")}
	e := NewEditor()

	err := e.LoadForEdit(context.Background(), b, 42, nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPostNotFound))
}

func TestLoadForEdit_FillsDraft(t *testing.T) {
	cat := int64(3)
	b := &fakeBackend{post: ok(models.Post{
		ID:         42,
		Title:      "Answer",
		Content:    "42",
		Status:     models.StatusPublished,
		CategoryID: &cat,
		Tags:       []string{"go", "seo"},
	})}
	e := NewEditor()

	require.NoError(t, e.LoadForEdit(context.Background(), b, 42, nil))
	assert.Equal(t, int64(42), e.ID)
	assert.Equal(t, "Answer", e.Draft.Title)
	assert.Equal(t, "go, seo", e.Draft.TagList())
	require.NotNil(t, e.Draft.CategoryID)
	assert.Equal(t, int64(3), *e.Draft.CategoryID)
}

func TestDraftValidate(t *testing.T) {
	assert.NoError(t, validDraft().Validate())

	cases := map[string]func(d *Draft){
		"missing title":  func(d *Draft) { d.Title = "" },
		"missing body":   func(d *Draft) { d.Content = "" },
		"bad status":     func(d *Draft) { d.Status = "archived" },
		"bad slug":       func(d *Draft) { d.Slug = "Not A Slug" },
		"long meta":      func(d *Draft) { d.MetaDescription = strings.Repeat("x", 161) },
		"bad image path": func(d *Draft) { d.FeaturedImage = "not a uri" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := validDraft()
			mutate(&d)
			assert.Error(t, d.Validate())
		})
	}
}

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{"go", "SEO", "web design"}, ParseTags(" go, SEO,,seo , web design "))
	assert.Equal(t, []string{}, ParseTags(""))
}

func TestSave_CreateAndUpdate(t *testing.T) {
	b := &fakeBackend{saved: ok(models.Post{ID: 7, Title: "Hello"})}
	e := NewEditor()
	e.Draft = validDraft()
	img := &apiclient.FilePart{Filename: "a.png", Content: strings.NewReader("x")}

	post, err := e.Save(context.Background(), b, img)
	require.NoError(t, err)
	assert.Equal(t, int64(7), post.ID)
	assert.Equal(t, 1, b.createCalls)
	assert.Same(t, img, b.lastImage)
	assert.Equal(t, int64(7), e.ID)

	_, err = e.Save(context.Background(), b, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, b.updateCalls)
	assert.Equal(t, int64(7), b.lastID)
}

func TestSave_FailureSetsAlert(t *testing.T) {
	b := &fakeBackend{saved: fail[models.Post](http.StatusConflict, "Slug already exists")}
	e := NewEditor()
	e.Draft = validDraft()

	_, err := e.Save(context.Background(), b, nil)
	require.Error(t, err)
	assert.Equal(t, "Slug already exists", e.Alert)
}

func TestSave_InvalidDraftIsNotSent(t *testing.T) {
	b := &fakeBackend{}
	e := NewEditor()

	_, err := e.Save(context.Background(), b, nil)
	require.Error(t, err)
	assert.NotEmpty(t, e.Alert)
	assert.Zero(t, b.createCalls)
}
