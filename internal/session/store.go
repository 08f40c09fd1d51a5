// Package session keeps the admin authentication state of one browser (or
// one CLI user) and mirrors it into a persistent key/value store so it
// survives reloads.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/brightline/internal/apiclient"
	"github.com/starford/brightline/internal/models"
	"github.com/starford/brightline/internal/storage"
)

// Persisted keys. The user is written under both UserKey and LegacyUserKey.
const (
	TokenKey      = "auth_token"
	UserKey       = "admin_user"
	LegacyUserKey = "user"
)

// DefaultLoginMessage is shown when the backend rejects a login without
// saying why.
const DefaultLoginMessage = "Login failed"

// Session is a snapshot of the authentication state.
type Session struct {
	User            *models.User
	Token           string
	IsAuthenticated bool
}

// Client is the part of the API client the store needs.
type Client interface {
	SetToken(token string)
	Login(ctx context.Context, username, password string) apiclient.Result[apiclient.LoginData]
}

// LoginError is returned by Store.Login when the backend refuses the
// credentials or answers without a token.
type LoginError struct {
	Message string
	Kind    apiclient.Kind
}

func (e *LoginError) Error() string {
	return e.Message
}

// Store owns one session. It is safe for concurrent use.
type Store struct {
	kv     storage.Provider
	client Client
	logger *slog.Logger

	mu     sync.RWMutex
	user   *models.User
	token  string
	authed bool
}

// New creates an empty store. Call Restore to load persisted state.
func New(kv storage.Provider, client Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, client: client, logger: logger}
}

// Session returns a consistent snapshot of the current state.
func (s *Store) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var u *models.User
	if s.user != nil {
		cp := *s.user
		u = &cp
	}
	return Session{User: u, Token: s.token, IsAuthenticated: s.authed}
}

// IsAuthenticated reports whether a user and token are held.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authed
}

// Restore loads the persisted token and user. When the stored user cannot be
// decoded every key is removed and the session stays empty.
func (s *Store) Restore(ctx context.Context) error {
	token, hasToken, err := s.kv.Get(ctx, TokenKey)
	if err != nil {
		return fmt.Errorf("session: read token: %w", err)
	}
	raw, hasUser, err := s.kv.Get(ctx, UserKey)
	if err != nil {
		return fmt.Errorf("session: read user: %w", err)
	}
	if !hasUser {
		raw, hasUser, err = s.kv.Get(ctx, LegacyUserKey)
		if err != nil {
			return fmt.Errorf("session: read legacy user: %w", err)
		}
	}
	if !hasToken || !hasUser || token == "" {
		return nil
	}

	user, err := decodeUser(raw)
	if err != nil {
		s.logger.Warn("discarding corrupt session", slog.String("error", err.Error()))
		s.clear()
		if err := s.kv.Remove(ctx, TokenKey, UserKey, LegacyUserKey); err != nil {
			return fmt.Errorf("session: clear corrupt state: %w", err)
		}
		return nil
	}

	s.set(user, token)
	return nil
}

// SetAuth persists user and token, then makes them the current session. When
// persisting fails the keys written so far are removed and the session is
// left signed out.
func (s *Store) SetAuth(ctx context.Context, user *models.User, token string) error {
	if user == nil || token == "" {
		return errors.New("session: user and token are required")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("session: encode user: %w", err)
	}

	if err := s.persist(ctx, token, string(data)); err != nil {
		s.clear()
		if rerr := s.kv.Remove(ctx, TokenKey, UserKey, LegacyUserKey); rerr != nil {
			s.logger.Warn("clear partial session", slog.String("error", rerr.Error()))
		}
		return err
	}
	s.set(user, token)
	return nil
}

func (s *Store) persist(ctx context.Context, token, user string) error {
	if err := s.kv.Set(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("session: persist token: %w", err)
	}
	for _, key := range []string{UserKey, LegacyUserKey} {
		if err := s.kv.Set(ctx, key, user); err != nil {
			return fmt.Errorf("session: persist %s: %w", key, err)
		}
	}
	return nil
}

// Login authenticates against the backend. Refusals come back as
// *LoginError; storage failures as wrapped errors.
func (s *Store) Login(ctx context.Context, username, password string) error {
	res := s.client.Login(ctx, username, password)
	if !res.Success || res.Data.Token == "" || res.Data.User == nil {
		msg := res.Message
		if msg == "" {
			msg = DefaultLoginMessage
		}
		s.logger.Info("login rejected",
			slog.String("username", username),
			slog.String("kind", res.Kind.String()))
		return &LoginError{Message: msg, Kind: res.Kind}
	}
	s.logger.Info("login succeeded", slog.String("username", username))
	return s.SetAuth(ctx, res.Data.User, res.Data.Token)
}

// Logout clears memory, the client token and every persisted key.
func (s *Store) Logout(ctx context.Context) error {
	s.clear()
	if err := s.kv.Remove(ctx, TokenKey, UserKey, LegacyUserKey); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

func (s *Store) set(user *models.User, token string) {
	cp := *user
	s.mu.Lock()
	s.user = &cp
	s.token = token
	s.authed = true
	s.mu.Unlock()
	s.client.SetToken(token)
}

func (s *Store) clear() {
	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.authed = false
	s.mu.Unlock()
	s.client.SetToken("")
}

func decodeUser(raw string) (*models.User, error) {
	var u models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if u.ID == 0 || u.Username == "" {
		return nil, errors.New("decode user: missing id or username")
	}
	return &u, nil
}
