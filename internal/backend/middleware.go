package backend

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/httprate"

	"github.com/starford/brightline/internal/models"
)

type userKey struct{}

// UserFrom returns the authenticated user stored by AuthMiddleware, or nil.
func UserFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey{}).(*models.User)
	return u
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// Actions that answer the same with or without a session. A stale token sent
// to them is ignored instead of rejected.
var tokenOptional = map[string]bool{
	"health": true,
	"login":  true,
}

// AuthMiddleware resolves the bearer token, when present, to a user stored in
// the request context. Requests without a token pass through anonymously;
// actions that need a user reject them. A token that is unknown or expired
// is answered with 401 so the caller can drop its session.
func AuthMiddleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			u, err := svc.Authenticate(r.Context(), token)
			if err != nil {
				if tokenOptional[r.URL.Query().Get("action")] {
					next.ServeHTTP(w, r)
					return
				}
				writeFail(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
		})
	}
}

// limitAction rate limits one action per client IP.
func limitAction(action string, requests int) func(http.Handler) http.Handler {
	limiter := httprate.Limit(requests, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeFail(w, http.StatusTooManyRequests, "Too many attempts. Please try again later.")
		}))
	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("action") == action {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
