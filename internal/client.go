package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/brightline/internal/apiclient"
	"github.com/starford/brightline/internal/importer"
	"github.com/starford/brightline/internal/session"
	"github.com/starford/brightline/internal/storage"
)

// ErrNotSignedIn is returned when a command needs a session and there is none.
var ErrNotSignedIn = errors.New("not signed in: run `brightline login` first")

// ClientSession is the command-line user's API client and the session that
// feeds it a token.
type ClientSession struct {
	Client  *apiclient.Client
	Session *session.Store
}

// OpenClientSession restores the session persisted in cfg.SessionFile.
func OpenClientSession(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*ClientSession, error) {
	kv, err := storage.NewJSONFile(cfg.SessionFile)
	if err != nil {
		return nil, err
	}
	client, err := apiclient.New(cfg.BackendURL, apiclient.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	store := session.New(kv, client, logger)
	if err := store.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	return &ClientSession{Client: client, Session: store}, nil
}

// RequireAuth returns ErrNotSignedIn unless a user is signed in.
func (cs *ClientSession) RequireAuth() error {
	if !cs.Session.IsAuthenticated() {
		return ErrNotSignedIn
	}
	return nil
}

// NewImporter builds the Markdown importer for cfg over an authenticated
// client.
func NewImporter(cfg ImporterConfig, client importer.Backend, logger *slog.Logger) (*importer.Importer, error) {
	files, err := storage.NewFS(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("importer dir: %w", err)
	}
	state, err := storage.NewJSONFile(cfg.StateFile)
	if err != nil {
		return nil, err
	}
	return importer.New(files, state, client,
		importer.WithPrune(cfg.Prune),
		importer.WithLogger(logger),
		importer.WithOnChange(func(kind, path string, id int64) {
			logger.Info("post imported",
				slog.String("kind", kind),
				slog.String("path", path),
				slog.Int64("post_id", id))
		}),
	), nil
}
