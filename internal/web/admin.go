package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/brightline/internal/apiclient"
	"github.com/starford/brightline/internal/models"
	"github.com/starford/brightline/internal/pages"
)

const (
	recentPosts   = 5
	maxImageBytes = 10 << 20
)

type dashboardView struct {
	Stats  *apiclient.Stats
	Recent *pages.PostList
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())

	var v dashboardView
	res := st.client.GetStats(r.Context())
	if s.expired(w, r, res.Err()) {
		return
	}
	if res.Success {
		v.Stats = &res.Data
	}
	v.Recent = &pages.PostList{}
	_ = v.Recent.LoadPosts(r.Context(), st.client, apiclient.PostQuery{Limit: recentPosts}, s.logger)

	s.render(w, r, http.StatusOK, "admin_dashboard.html", view{Title: "Dashboard", Data: v})
}

func (s *Server) adminPosts(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	q := apiclient.PostQuery{
		Page:   queryInt(r, "page", 1),
		Limit:  pages.DefaultPageSize,
		Search: r.URL.Query().Get("search"),
	}
	if status := models.PostStatus(r.URL.Query().Get("status")); status.Valid() {
		q.Status = string(status)
	}

	got, err := fetchView(s, r, "admin-posts", func(ctx context.Context) loaded[*pages.PostList] {
		l := &pages.PostList{}
		return loaded[*pages.PostList]{v: l, err: l.LoadPosts(ctx, st.client, q, s.logger)}
	})
	if stale(w, err) || s.expired(w, r, got.err) {
		return
	}
	list := got.v

	s.render(w, r, http.StatusOK, "admin_posts.html", view{
		Title: "Posts",
		Data:  listView{List: list, Controls: list.Controls(), basePath: adminPostsPath},
	})
}

func (s *Server) newPost(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	ed := pages.NewEditor()
	ed.LoadCategories(r.Context(), st.client, s.logger)
	s.render(w, r, http.StatusOK, "admin_editor.html", view{Title: "New post", Data: ed})
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	ed := pages.NewEditor()
	s.savePost(w, r, ed, "Post created")
}

func (s *Server) editPost(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	id, ok := s.postID(w, r)
	if !ok {
		return
	}

	got, err := fetchView(s, r, "editor", func(ctx context.Context) loaded[*pages.Editor] {
		ed := pages.NewEditor()
		return loaded[*pages.Editor]{v: ed, err: ed.LoadForEdit(ctx, st.client, id, s.logger)}
	})
	if stale(w, err) || s.expired(w, r, got.err) {
		return
	}
	if got.err != nil {
		msg := pages.ErrMsgPostNotFound
		if !errors.Is(got.err, pages.ErrPostNotFound) {
			msg = errorMessage(got.err)
		}
		s.setFlash(r.Context(), st, flashError, msg)
		http.Redirect(w, r, adminPostsPath, http.StatusSeeOther)
		return
	}

	ed := got.v
	ed.LoadCategories(r.Context(), st.client, s.logger)
	s.render(w, r, http.StatusOK, "admin_editor.html", view{Title: "Edit post", Data: ed})
}

// loaded carries a view model and the error of the fetch that filled it.
type loaded[T any] struct {
	v   T
	err error
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := s.postID(w, r)
	if !ok {
		return
	}
	ed := pages.NewEditor()
	ed.ID = id
	s.savePost(w, r, ed, "Post updated")
}

// savePost submits the posted form through ed. Failures re-render the form
// with an alert; success redirects to the post list.
func (s *Server) savePost(w http.ResponseWriter, r *http.Request, ed *pages.Editor, done string) {
	st := stateFrom(r.Context())
	ed.Draft = draftFromForm(r)

	image, err := formImage(r)
	if err != nil {
		ed.Alert = err.Error()
		ed.LoadCategories(r.Context(), st.client, s.logger)
		s.render(w, r, http.StatusUnprocessableEntity, "admin_editor.html", view{Title: "Edit post", Data: ed})
		return
	}

	post, err := ed.Save(r.Context(), st.client, image)
	if s.expired(w, r, err) {
		return
	}
	if err != nil {
		ed.LoadCategories(r.Context(), st.client, s.logger)
		s.render(w, r, http.StatusUnprocessableEntity, "admin_editor.html", view{Title: "Edit post", Data: ed})
		return
	}

	s.logger.Info("post saved", slog.Int64("id", post.ID), slog.String("slug", post.Slug))
	s.setFlash(r.Context(), st, flashSuccess, done)
	http.Redirect(w, r, adminPostsPath, http.StatusSeeOther)
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	id, ok := s.postID(w, r)
	if !ok {
		return
	}
	res := st.client.DeletePost(r.Context(), id)
	if s.expired(w, r, res.Err()) {
		return
	}
	if !res.Success {
		s.setFlash(r.Context(), st, flashError, errorMessage(res.Err()))
	} else {
		s.setFlash(r.Context(), st, flashSuccess, "Post deleted")
	}
	http.Redirect(w, r, adminPostsPath, http.StatusSeeOther)
}

func (s *Server) adminCategories(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	var cats pages.CategoryList
	if s.expired(w, r, cats.Load(r.Context(), st.client, s.logger)) {
		return
	}
	s.render(w, r, http.StatusOK, "admin_categories.html", view{Title: "Categories", Data: &cats})
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	in := categoryFromForm(r)
	if err := validateCategory(in); err != nil {
		s.setFlash(r.Context(), st, flashError, err.Error())
		http.Redirect(w, r, adminCatsPath, http.StatusSeeOther)
		return
	}
	res := st.client.CreateCategory(r.Context(), in)
	s.finishCategory(w, r, res.Err(), "Category created")
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.setFlash(r.Context(), st, flashError, "Category not found")
		http.Redirect(w, r, adminCatsPath, http.StatusSeeOther)
		return
	}
	in := categoryFromForm(r)
	if err := validateCategory(in); err != nil {
		s.setFlash(r.Context(), st, flashError, err.Error())
		http.Redirect(w, r, adminCatsPath, http.StatusSeeOther)
		return
	}
	res := st.client.UpdateCategory(r.Context(), id, in)
	s.finishCategory(w, r, res.Err(), "Category updated")
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.setFlash(r.Context(), st, flashError, "Category not found")
		http.Redirect(w, r, adminCatsPath, http.StatusSeeOther)
		return
	}
	res := st.client.DeleteCategory(r.Context(), id)
	s.finishCategory(w, r, res.Err(), "Category deleted")
}

func (s *Server) finishCategory(w http.ResponseWriter, r *http.Request, err error, done string) {
	if s.expired(w, r, err) {
		return
	}
	st := stateFrom(r.Context())
	if err != nil {
		s.setFlash(r.Context(), st, flashError, errorMessage(err))
	} else {
		s.setFlash(r.Context(), st, flashSuccess, done)
	}
	http.Redirect(w, r, adminCatsPath, http.StatusSeeOther)
}

func (s *Server) postID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.setFlash(r.Context(), stateFrom(r.Context()), flashError, pages.ErrMsgPostNotFound)
		http.Redirect(w, r, adminPostsPath, http.StatusSeeOther)
		return 0, false
	}
	return id, true
}

func draftFromForm(r *http.Request) pages.Draft {
	d := pages.NewDraft()
	d.Title = r.PostFormValue("title")
	d.Slug = r.PostFormValue("slug")
	d.Content = r.PostFormValue("content")
	d.Excerpt = r.PostFormValue("excerpt")
	d.MetaTitle = r.PostFormValue("meta_title")
	d.MetaDescription = r.PostFormValue("meta_description")
	d.Tags = pages.ParseTags(r.PostFormValue("tags"))
	d.FeaturedImage = r.PostFormValue("featured_image_url")
	if status := models.PostStatus(r.PostFormValue("status")); status != "" {
		d.Status = status
	}
	if v := r.PostFormValue("category_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			d.CategoryID = &id
		}
	}
	return d
}

// formImage returns the uploaded featured image, or nil when none was sent.
func formImage(r *http.Request) (*apiclient.FilePart, error) {
	f, hdr, err := r.FormFile("featured_image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	defer f.Close()
	if hdr.Size == 0 {
		return nil, nil
	}
	if hdr.Size > maxImageBytes {
		return nil, errors.New("Image is too large (max 10MB)")
	}
	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return &apiclient.FilePart{
		Field:       "featured_image",
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Content:     bytes.NewReader(data),
	}, nil
}

func categoryFromForm(r *http.Request) apiclient.CategoryInput {
	return apiclient.CategoryInput{
		Name:        strings.TrimSpace(r.PostFormValue("name")),
		Slug:        strings.TrimSpace(r.PostFormValue("slug")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
	}
}

func validateCategory(in apiclient.CategoryInput) error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Slug, validation.Length(0, 100)),
	)
}

// errorMessage is the user-facing text of a failed call.
func errorMessage(err error) string {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return apiclient.MsgUnknown
}
