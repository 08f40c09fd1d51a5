package pages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/brightline/internal/apiclient"
	"github.com/starford/brightline/internal/models"
)

// ErrPostNotFound is returned by LoadForEdit when the post does not exist.
var ErrPostNotFound = errors.New(ErrMsgPostNotFound)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Draft is the editable copy of a post. It is submitted as a full
// replacement on save.
type Draft struct {
	Title           string
	Slug            string
	Content         string
	Excerpt         string
	CategoryID      *int64
	Status          models.PostStatus
	MetaTitle       string
	MetaDescription string
	Tags            []string
	FeaturedImage   string
}

// NewDraft returns an empty draft post.
func NewDraft() Draft {
	return Draft{Status: models.StatusDraft, Tags: []string{}}
}

// DraftFromPost copies the editable fields of p.
func DraftFromPost(p models.Post) Draft {
	d := Draft{
		Title:           p.Title,
		Slug:            p.Slug,
		Content:         p.Content,
		Excerpt:         p.Excerpt,
		Status:          p.Status,
		MetaTitle:       p.MetaTitle,
		MetaDescription: p.MetaDescription,
		Tags:            append([]string{}, p.Tags...),
		FeaturedImage:   p.FeaturedImage,
	}
	if p.CategoryID != nil {
		id := *p.CategoryID
		d.CategoryID = &id
	}
	if d.Status == "" {
		d.Status = models.StatusDraft
	}
	return d
}

// TagList returns the tags joined for a text input.
func (d Draft) TagList() string {
	return strings.Join(d.Tags, ", ")
}

// Input converts the draft into the client's submission type.
func (d Draft) Input() apiclient.PostInput {
	return apiclient.PostInput{
		Title:           strings.TrimSpace(d.Title),
		Slug:            strings.TrimSpace(d.Slug),
		Content:         d.Content,
		Excerpt:         strings.TrimSpace(d.Excerpt),
		CategoryID:      d.CategoryID,
		Status:          d.Status,
		MetaTitle:       strings.TrimSpace(d.MetaTitle),
		MetaDescription: strings.TrimSpace(d.MetaDescription),
		Tags:            d.Tags,
		FeaturedImage:   d.FeaturedImage,
	}
}

// Validate checks the draft before it is sent.
func (d Draft) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&d.Slug, validation.Length(0, 200), validation.Match(slugPattern)),
		validation.Field(&d.Content, validation.Required),
		validation.Field(&d.Excerpt, validation.Length(0, 500)),
		validation.Field(&d.Status, validation.Required, validation.In(models.StatusDraft, models.StatusPublished)),
		validation.Field(&d.MetaTitle, validation.Length(0, 70)),
		validation.Field(&d.MetaDescription, validation.Length(0, 160)),
		validation.Field(&d.FeaturedImage, is.RequestURI),
	)
}

// ParseTags splits a comma separated tag list, dropping blanks and duplicates.
func ParseTags(s string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	return out
}

// Editor backs the create and edit post pages.
type Editor struct {
	// ID is zero for a new post.
	ID         int64
	Draft      Draft
	Categories CategoryList
	Alert      string
	Loading    bool
}

// NewEditor returns an editor for a new post.
func NewEditor() *Editor {
	return &Editor{Draft: NewDraft()}
}

// IsNew reports whether the editor creates a post.
func (e *Editor) IsNew() bool {
	return e.ID == 0
}

// LoadCategories fills the category selector.
func (e *Editor) LoadCategories(ctx context.Context, b Backend, logger *slog.Logger) {
	_ = e.Categories.Load(ctx, b, logger)
}

// LoadForEdit loads post id into the draft. A post the backend does not know
// yields ErrPostNotFound; other failures are returned as they are.
func (e *Editor) LoadForEdit(ctx context.Context, b Backend, id int64, logger *slog.Logger) error {
	e.Loading = true
	defer func() { e.Loading = false }()

	res := b.GetPost(ctx, id)
	if !res.Success {
		logFailure(logger, "post for edit", res)
		if res.Kind == apiclient.KindDomain && !res.Unauthorized() {
			return ErrPostNotFound
		}
		return res.Err()
	}
	if res.Data.ID == 0 {
		return ErrPostNotFound
	}
	e.ID = res.Data.ID
	e.Draft = DraftFromPost(res.Data)
	return nil
}

// Save validates the draft and submits it with the optional image. On
// failure Alert holds the message to show and the error is returned.
func (e *Editor) Save(ctx context.Context, b Backend, image *apiclient.FilePart) (models.Post, error) {
	if err := e.Draft.Validate(); err != nil {
		e.Alert = err.Error()
		return models.Post{}, fmt.Errorf("pages: invalid draft: %w", err)
	}

	var res apiclient.Result[models.Post]
	if e.IsNew() {
		res = b.CreatePost(ctx, e.Draft.Input(), image)
	} else {
		res = b.UpdatePost(ctx, e.ID, e.Draft.Input(), image)
	}
	if !res.Success {
		e.Alert = res.Message
		if e.Alert == "" {
			e.Alert = apiclient.MsgUnknown
		}
		return models.Post{}, res.Err()
	}
	e.Alert = ""
	if res.Data.ID != 0 {
		e.ID = res.Data.ID
	}
	return res.Data, nil
}
