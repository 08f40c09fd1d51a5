package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starford/brightline/internal/apperr"
	"github.com/starford/brightline/internal/guard"
	"github.com/starford/brightline/internal/session"
)

const (
	adminHome      = "/admin"
	adminPostsPath = "/admin/posts"
	adminCatsPath  = "/admin/categories"

	msgMissingCredentials = "Username and password are required"
	msgSessionExpired     = "Your session has expired. Please sign in again."
)

type loginView struct {
	Username string
	Error    string
}

func (s *Server) loginForm(w http.ResponseWriter, r *http.Request) {
	if stateFrom(r.Context()).session.IsAuthenticated() {
		http.Redirect(w, r, adminHome, http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", view{Title: "Login", Data: loginView{}})
}

func (s *Server) loginSubmit(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		s.render(w, r, http.StatusOK, "login.html", view{
			Title: "Login",
			Data:  loginView{Username: username, Error: msgMissingCredentials},
		})
		return
	}

	if err := st.session.Login(r.Context(), username, password); err != nil {
		msg := session.DefaultLoginMessage
		var le *session.LoginError
		if errors.As(err, &le) {
			msg = le.Message
		} else {
			s.logger.Error("login", slog.String("error", err.Error()))
		}
		s.render(w, r, http.StatusOK, "login.html", view{
			Title: "Login",
			Data:  loginView{Username: username, Error: msg},
		})
		return
	}

	s.logger.Info("admin signed in", slog.String("username", username))
	http.Redirect(w, r, adminHome, http.StatusSeeOther)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	if err := st.session.Logout(r.Context()); err != nil {
		s.logger.Warn("logout", slog.String("error", err.Error()))
	}
	s.setFlash(r.Context(), st, flashInfo, "You have been signed out.")
	http.Redirect(w, r, guard.DefaultLoginPath, http.StatusSeeOther)
}

// expired resets the session and sends the browser to the login page when
// err is a rejected token. It reports whether it handled the request.
func (s *Server) expired(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil || !errors.Is(err, apperr.ErrUnauthorized) {
		return false
	}
	st := stateFrom(r.Context())
	if lerr := st.session.Logout(r.Context()); lerr != nil {
		s.logger.Warn("logout", slog.String("error", lerr.Error()))
	}
	s.setFlash(r.Context(), st, flashError, msgSessionExpired)
	http.Redirect(w, r, guard.DefaultLoginPath, http.StatusSeeOther)
	return true
}
