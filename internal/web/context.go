package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/starford/brightline/internal/apiclient"
	"github.com/starford/brightline/internal/guard"
	"github.com/starford/brightline/internal/session"
	"github.com/starford/brightline/internal/storage"
)

const (
	clientCookie    = "bl_client"
	clientCookieAge = 365 * 24 * 60 * 60
)

type stateKey struct{}

// requestState is what clientSession attaches to every request.
type requestState struct {
	clientID string
	kv       storage.Provider
	client   *apiclient.Client
	session  *session.Store
}

func stateFrom(ctx context.Context) *requestState {
	st, _ := ctx.Value(stateKey{}).(*requestState)
	return st
}

type anonymous struct{}

func (anonymous) IsAuthenticated() bool { return false }

func sessionLookup(r *http.Request) guard.Checker {
	if st := stateFrom(r.Context()); st != nil {
		return st.session
	}
	return anonymous{}
}

// clientSession assigns the browser a client id and restores its session
// from the key/value store.
func (s *Server) clientSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := clientID(r)
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     clientCookie,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.cfg.SecureCookies,
				SameSite: http.SameSiteLaxMode,
				MaxAge:   clientCookieAge,
			})
		}

		client, err := s.newClient()
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		kv := s.kv.Namespace(id)
		store := session.New(kv, client, s.logger)
		if err := store.Restore(r.Context()); err != nil {
			s.logger.Warn("restore session", slog.String("error", err.Error()))
		}

		st := &requestState{clientID: id, kv: kv, client: client, session: store}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), stateKey{}, st)))
	})
}

func clientID(r *http.Request) string {
	c, err := r.Cookie(clientCookie)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}
