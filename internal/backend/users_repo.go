package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/brightline/internal/apperr"
	"github.com/starford/brightline/internal/models"
)

type userRow struct {
	ID           int64  `db:"id"`
	Username     string `db:"username"`
	Name         string `db:"name"`
	Email        string `db:"email"`
	Role         string `db:"role"`
	PasswordHash string `db:"password_hash"`
}

func (r userRow) model() *models.User {
	return &models.User{ID: r.ID, Username: r.Username, Name: r.Name, Email: r.Email, Role: r.Role}
}

// CountUsers returns the number of accounts.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("backend: count users: %w", err)
	}
	return n, nil
}

// InsertUser stores a new account.
func (db *DB) InsertUser(ctx context.Context, u userRow) (int64, error) {
	res, err := db.conn.NamedExecContext(ctx, `
		INSERT INTO users (username, name, email, role, password_hash)
		VALUES (:username, :name, :email, :role, :password_hash)`, u)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("backend: insert user: %w", apperr.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("backend: insert user: %w", err)
	}
	return res.LastInsertId()
}

// GetUserByUsername returns the account with username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*userRow, error) {
	var u userRow
	err := db.conn.GetContext(ctx, &u,
		`SELECT id, username, name, email, role, password_hash FROM users WHERE username = ?`, username)
	if err != nil {
		if notFound(err) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("backend: get user: %w", err)
	}
	return &u, nil
}

// InsertToken stores the hash of an issued bearer token.
func (db *DB) InsertToken(ctx context.Context, hash string, userID int64, created, expires time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO auth_tokens (token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		hash, userID, created, expires)
	if err != nil {
		return fmt.Errorf("backend: insert token: %w", err)
	}
	return nil
}

// UserByToken returns the owner of an unexpired token hash.
func (db *DB) UserByToken(ctx context.Context, hash string, now time.Time) (*models.User, error) {
	var u userRow
	err := db.conn.GetContext(ctx, &u, `
		SELECT u.id, u.username, u.name, u.email, u.role, u.password_hash
		FROM auth_tokens t JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = ? AND t.expires_at > ?`, hash, now)
	if err != nil {
		if notFound(err) {
			return nil, apperr.ErrUnauthorized
		}
		return nil, fmt.Errorf("backend: token lookup: %w", err)
	}
	return u.model(), nil
}

// PurgeTokens deletes tokens that expired before now.
func (db *DB) PurgeTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM auth_tokens WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("backend: purge tokens: %w", err)
	}
	return res.RowsAffected()
}
