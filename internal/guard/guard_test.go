package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeSession bool

func (f fakeSession) IsAuthenticated() bool { return bool(f) }

func protected(lookup Lookup) http.Handler {
	return Require(lookup, "")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("dashboard"))
	}))
}

func TestRequire_AuthenticatedPassesThrough(t *testing.T) {
	h := protected(func(*http.Request) Checker { return fakeSession(true) })

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "dashboard" {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestRequire_AnonymousRedirects(t *testing.T) {
	cases := map[string]Lookup{
		"unauthenticated": func(*http.Request) Checker { return fakeSession(false) },
		"no session":      func(*http.Request) Checker { return nil },
	}
	for name, lookup := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			protected(lookup).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/posts", nil))

			if w.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", w.Code)
			}
			if loc := w.Header().Get("Location"); loc != DefaultLoginPath {
				t.Fatalf("Location = %q, want %q", loc, DefaultLoginPath)
			}
			if w.Body.Len() != 0 {
				t.Fatalf("body = %q, want empty", w.Body.String())
			}
		})
	}
}

func TestRequire_CustomLoginPath(t *testing.T) {
	h := Require(func(*http.Request) Checker { return nil }, "/signin")(http.NotFoundHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/categories", nil))

	if loc := w.Header().Get("Location"); loc != "/signin" {
		t.Fatalf("Location = %q", loc)
	}
}
