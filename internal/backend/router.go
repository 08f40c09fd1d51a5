package backend

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const windowLength = time.Minute

// RouterConfig holds the optional parts of the backend router.
type RouterConfig struct {
	// Events, when set, is served at GET /api/events to authenticated clients.
	Events http.Handler
	// LoginRate is the number of login attempts allowed per IP per minute.
	LoginRate int
	Logger    *slog.Logger
}

// NewRouter mounts the action endpoint at /api, uploads at /uploads/ and the
// optional event stream.
func NewRouter(svc *Service, uploads *Uploads, cfg RouterConfig) chi.Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LoginRate <= 0 {
		cfg.LoginRate = 10
	}
	h := NewHandler(svc, uploads, cfg.Logger)

	r := chi.NewRouter()
	r.Get("/uploads/{filename}", uploads.ServeFile)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(svc))
		r.Use(limitAction("login", cfg.LoginRate))
		r.Handle("/api", h)
		r.Handle("/api/", h)
		if cfg.Events != nil {
			r.With(requireUser).Get("/api/events", cfg.Events.ServeHTTP)
		}
	})

	return r
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFrom(r.Context()) == nil {
			writeFail(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
