package apiclient

import (
	"context"
	"net/http"
	"time"

	"github.com/starford/brightline/internal/models"
)

// LoginData is the payload of a successful login.
type LoginData struct {
	Token     string       `json:"token"`
	User      *models.User `json:"user"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges credentials for a bearer token. It does not store the
// token; callers hand it to the session store.
func (c *Client) Login(ctx context.Context, username, password string) Result[LoginData] {
	return decode[LoginData](c.Request(ctx, "login", RequestOptions{
		Method: http.MethodPost,
		JSON:   loginRequest{Username: username, Password: password},
	}))
}

// HealthStatus is the payload of the health action.
type HealthStatus struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// Health pings the backend.
func (c *Client) Health(ctx context.Context) Result[HealthStatus] {
	return decode[HealthStatus](c.Request(ctx, "health", RequestOptions{}))
}
