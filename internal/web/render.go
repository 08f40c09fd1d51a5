package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/starford/brightline/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = []string{
	"home.html",
	"blog_list.html",
	"blog_post.html",
	"not_found.html",
	"login.html",
	"admin_dashboard.html",
	"admin_posts.html",
	"admin_editor.html",
	"admin_categories.html",
}

// view is the data every page template receives.
type view struct {
	Title           string
	MetaDescription string
	Session         session.Session
	Flash           *Flash
	CSRFToken       string
	Path            string
	Data            any
}

func linebreaks(s string) template.HTML {
	s = template.HTMLEscapeString(s)

	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, "<p>"+strings.ReplaceAll(p, "\n", "<br>")+"</p>")
		}
	}
	return template.HTML(strings.Join(out, "\n"))
}

func formatDate(t any) string {
	switch v := t.(type) {
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format("Jan 2, 2006")
	case *time.Time:
		if v == nil || v.IsZero() {
			return ""
		}
		return v.Format("Jan 2, 2006")
	}
	return ""
}

// selected reports whether the optional id equals want.
func selected(id *int64, want int64) bool {
	return id != nil && *id == want
}

func loadTemplates() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"linebreaks": linebreaks,
		"date":       formatDate,
		"join":       strings.Join,
		"selected":   selected,
	}
	templates := make(map[string]*template.Template, len(pageTemplates))
	for _, page := range pageTemplates {
		t, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/base.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("web: parse %s: %w", page, err)
		}
		templates[page] = t
	}
	return templates, nil
}

// render executes page into a buffer first so a template failure never
// leaves a half-written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, v view) {
	t, ok := s.templates[page]
	if !ok {
		s.serverError(w, r, fmt.Errorf("web: unknown template %s", page))
		return
	}
	if st := stateFrom(r.Context()); st != nil {
		v.Session = st.session.Session()
		if v.Flash == nil {
			v.Flash = s.popFlash(r.Context(), st)
		}
	}
	v.CSRFToken = s.ensureCSRFToken(w, r)
	v.Path = r.URL.Path

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", v); err != nil {
		s.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "not_found.html", view{
		Title: "Not found",
		Data:  "The page you are looking for does not exist.",
	})
}
