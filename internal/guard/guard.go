// Package guard gates admin routes behind an authenticated session.
package guard

import "net/http"

// DefaultLoginPath is where unauthenticated visitors are sent.
const DefaultLoginPath = "/admin/login"

// Checker reports whether the request's session is authenticated.
type Checker interface {
	IsAuthenticated() bool
}

// Lookup returns the session bound to r, or nil when there is none.
type Lookup func(r *http.Request) Checker

// Require returns middleware that calls next only for authenticated sessions
// and answers 302 to loginPath with an empty body otherwise. Roles are not
// checked.
func Require(lookup Lookup, loginPath string) func(http.Handler) http.Handler {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s := lookup(r); s != nil && s.IsAuthenticated() {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Location", loginPath)
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusFound)
		})
	}
}
