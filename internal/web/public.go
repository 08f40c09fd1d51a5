package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/brightline/internal/apiclient"
	"github.com/starford/brightline/internal/apperr"
	"github.com/starford/brightline/internal/models"
	"github.com/starford/brightline/internal/pages"
)

// listView backs the public and admin list templates.
type listView struct {
	List       *pages.PostList
	Categories *pages.CategoryList
	Controls   []pages.PageControl
	basePath   string
}

// PageURL links to page n keeping the current filters.
func (v listView) PageURL(n int) string {
	q := url.Values{}
	if n > 1 {
		q.Set("page", strconv.Itoa(n))
	}
	if v.List.Query.Search != "" {
		q.Set("search", v.List.Query.Search)
	}
	if v.List.Query.Status != "" && v.basePath == adminPostsPath {
		q.Set("status", v.List.Query.Status)
	}
	if len(q) == 0 {
		return v.basePath
	}
	return v.basePath + "?" + q.Encode()
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// tabHeader carries the id of the tab that issued an in-page list refresh.
const (
	tabHeader = "X-Brightline-Tab"
	maxTabID  = 64
)

// fetchView runs fetch for view. Refreshes issued by a script from the same
// tab share a slot, so a newer one supersedes an older one still in flight.
// Navigations carry no tab id and always get their own result.
func fetchView[T any](s *Server, r *http.Request, view string, fetch func(context.Context) T) (T, error) {
	tab := r.Header.Get(tabHeader)
	if tab == "" || len(tab) > maxTabID {
		return fetch(r.Context()), nil
	}
	st := stateFrom(r.Context())
	return pages.Fetch(r.Context(), s.latest, st.clientID+":"+tab+":"+view, fetch)
}

// stale answers a scripted refresh that was superseded by a newer one from
// the same tab. The script ignores 204 and keeps what it shows.
func stale(w http.ResponseWriter, err error) bool {
	if errors.Is(err, pages.ErrStale) {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// readPublic runs load with the browser's client. When the backend refuses
// the browser's token the session is dropped and load runs once more
// anonymously, so public pages never fail on an expired sign-in.
func (s *Server) readPublic(ctx context.Context, st *requestState, load func(b pages.Backend) error) {
	if err := load(st.client); !errors.Is(err, apperr.ErrUnauthorized) {
		return
	}
	s.logger.Info("dropping expired session", slog.String("client", st.clientID))
	if err := st.session.Logout(ctx); err != nil {
		s.logger.Warn("logout", slog.String("error", err.Error()))
	}
	_ = load(st.client)
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	var home pages.Home
	s.readPublic(r.Context(), st, func(b pages.Backend) error {
		return home.Load(r.Context(), b, s.cfg.FeaturedLimit, s.logger)
	})
	s.render(w, r, http.StatusOK, "home.html", view{
		MetaDescription: "Brightline is a digital agency for strategy, design and growth marketing.",
		Data:            &home,
	})
}

func (s *Server) blogList(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	q := apiclient.PostQuery{
		Page:   queryInt(r, "page", 1),
		Limit:  pages.DefaultPageSize,
		Search: r.URL.Query().Get("search"),
		Status: string(models.StatusPublished),
	}
	list, err := fetchView(s, r, "blog", func(ctx context.Context) *pages.PostList {
		var l pages.PostList
		s.readPublic(ctx, st, func(b pages.Backend) error { return l.LoadPosts(ctx, b, q, s.logger) })
		return &l
	})
	if stale(w, err) {
		return
	}
	var cats pages.CategoryList
	s.readPublic(r.Context(), st, func(b pages.Backend) error { return cats.Load(r.Context(), b, s.logger) })

	s.render(w, r, http.StatusOK, "blog_list.html", view{
		Title: "Blog",
		Data:  listView{List: list, Categories: &cats, Controls: list.Controls(), basePath: "/blog"},
	})
}

func (s *Server) blogCategory(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	slug := chi.URLParam(r, "slug")
	list, err := fetchView(s, r, "category", func(ctx context.Context) *pages.PostList {
		var l pages.PostList
		s.readPublic(ctx, st, func(b pages.Backend) error {
			return l.LoadCategory(ctx, b, slug, queryInt(r, "page", 1), s.logger)
		})
		return &l
	})
	if stale(w, err) {
		return
	}
	if list.Category == nil {
		s.notFound(w, r)
		return
	}
	var cats pages.CategoryList
	s.readPublic(r.Context(), st, func(b pages.Backend) error { return cats.Load(r.Context(), b, s.logger) })

	s.render(w, r, http.StatusOK, "blog_list.html", view{
		Title:           list.Category.Name,
		MetaDescription: list.Category.Description,
		Data: listView{
			List:       list,
			Categories: &cats,
			Controls:   list.Controls(),
			basePath:   "/blog/category/" + url.PathEscape(slug),
		},
	})
}

func (s *Server) blogPost(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	slug := chi.URLParam(r, "slug")
	detail, err := fetchView(s, r, "post", func(ctx context.Context) *pages.PostDetail {
		var d pages.PostDetail
		s.readPublic(ctx, st, func(b pages.Backend) error { return d.LoadPost(ctx, b, slug, s.logger) })
		return &d
	})
	if stale(w, err) {
		return
	}
	if detail.Error != "" {
		s.render(w, r, http.StatusNotFound, "blog_post.html", view{Title: detail.Error, Data: detail})
		return
	}

	v := view{Title: detail.Post.Title, MetaDescription: detail.Post.Excerpt, Data: detail}
	if detail.Post.MetaTitle != "" {
		v.Title = detail.Post.MetaTitle
	}
	if detail.Post.MetaDescription != "" {
		v.MetaDescription = detail.Post.MetaDescription
	}
	s.render(w, r, http.StatusOK, "blog_post.html", v)
}
