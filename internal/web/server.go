// Package web serves the public site and the admin panel. Each request gets
// its own API client and session store bound to the browser's client id, so
// browsers never share authentication state.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/starford/brightline/internal/apiclient"
	"github.com/starford/brightline/internal/guard"
	"github.com/starford/brightline/internal/pages"
	"github.com/starford/brightline/internal/storage"
)

const (
	defaultFeatured = 3
	defaultLogins   = 10
	readyTimeout    = 2 * time.Second
)

// Config holds the web server settings.
type Config struct {
	BackendURL     string
	RequestTimeout time.Duration
	SecureCookies  bool
	// LoginRate is the number of login attempts allowed per IP per minute.
	LoginRate     int
	FeaturedLimit int
}

// Namespacer hands out one key/value namespace per browser.
type Namespacer interface {
	Namespace(ns string) storage.Provider
}

// Server renders pages from backend data.
type Server struct {
	cfg       Config
	kv        Namespacer
	http      *http.Client
	latest    *pages.Latest
	templates map[string]*template.Template
	logger    *slog.Logger
}

// New validates cfg and parses the templates.
func New(cfg Config, kv Namespacer, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := apiclient.New(cfg.BackendURL); err != nil {
		return nil, fmt.Errorf("web: %w", err)
	}
	if cfg.FeaturedLimit <= 0 {
		cfg.FeaturedLimit = defaultFeatured
	}
	if cfg.LoginRate <= 0 {
		cfg.LoginRate = defaultLogins
	}
	tmpl, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	// No cookie jar: the client is shared by every browser.
	hc := &http.Client{Timeout: cfg.RequestTimeout}
	return &Server{
		cfg:       cfg,
		kv:        kv,
		http:      hc,
		latest:    pages.NewLatest(),
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Routes returns the site router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health/live", s.live)
	r.Get("/health/ready", s.ready)

	r.Group(func(r chi.Router) {
		r.Use(s.clientSession)
		r.Use(s.verifyCSRF)
		r.NotFound(s.notFound)

		r.Get("/", s.home)
		r.Get("/blog", s.blogList)
		r.Get("/blog/category/{slug}", s.blogCategory)
		r.Get("/blog/{slug}", s.blogPost)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/login", s.loginForm)
			r.With(httprate.LimitByIP(s.cfg.LoginRate, time.Minute)).Post("/login", s.loginSubmit)
			r.Post("/logout", s.logout)

			r.Group(func(r chi.Router) {
				r.Use(guard.Require(sessionLookup, guard.DefaultLoginPath))
				r.Get("/", s.dashboard)
				r.Get("/events", s.events)
				r.Get("/posts", s.adminPosts)
				r.Get("/posts/new", s.newPost)
				r.Post("/posts/new", s.createPost)
				r.Get("/posts/edit/{id}", s.editPost)
				r.Post("/posts/edit/{id}", s.updatePost)
				r.Post("/posts/{id}/delete", s.deletePost)
				r.Get("/categories", s.adminCategories)
				r.Post("/categories", s.createCategory)
				r.Post("/categories/{id}", s.updateCategory)
				r.Post("/categories/{id}/delete", s.deleteCategory)
			})
		})
	})

	return r
}

func (s *Server) live(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, "ok")
}

// ready reports whether the backend answers its health action.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	client, err := s.newClient()
	if err != nil {
		writeStatus(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if res := client.Health(ctx); !res.Success {
		s.logger.Warn("backend not ready",
			slog.String("kind", res.Kind.String()),
			slog.String("message", res.Message))
		writeStatus(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	writeStatus(w, http.StatusOK, "ok")
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) newClient() (*apiclient.Client, error) {
	return apiclient.New(s.cfg.BackendURL,
		apiclient.WithHTTPClient(s.http),
		apiclient.WithLogger(s.logger))
}
