// Package apiclient is the single point of contact with the content backend.
// Every backend call goes through Client.Request, which builds the
// action-based URL, attaches the bearer token and normalizes every outcome
// (success, backend failure, malformed body, transport error) into a Result.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 16 << 20
)

// Client talks to one backend base URL. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *slog.Logger

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithToken sets the initial bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// NewHTTPClient returns an http.Client with a cookie jar, so backend cookies
// are sent back on later requests.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	jar, _ := cookiejar.New(nil)
	return &http.Client{Timeout: timeout, Jar: jar}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("apiclient: base url must be http or https: %q", baseURL)
	}
	c := &Client{baseURL: u}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = NewHTTPClient(defaultTimeout)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// SetToken replaces the bearer token. An empty token disables the header.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// RequestOptions describes one backend call. At most one of JSON and
// Multipart may be set.
type RequestOptions struct {
	Method    string
	Query     url.Values
	JSON      any
	Multipart *Multipart
}

// Multipart is a multipart/form-data body.
type Multipart struct {
	Fields url.Values
	Files  []FilePart
}

// FilePart is one file in a multipart body.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Content     io.Reader
}

// envelope is the wire shape of every backend response.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// Request performs the call for action and returns the raw envelope. It never
// returns a Go error: every failure is folded into the Result.
func (c *Client) Request(ctx context.Context, action string, opts RequestOptions) Result[json.RawMessage] {
	start := time.Now()

	body, contentType, err := encodeBody(opts)
	if err != nil {
		return failure[json.RawMessage](KindTransport, 0, MsgUnknown, err.Error())
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
		if body != nil {
			method = http.MethodPost
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.actionURL(action, opts.Query), body)
	if err != nil {
		return failure[json.RawMessage](KindTransport, 0, MsgUnknown, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("api request failed",
			slog.String("action", action),
			slog.String("error", err.Error()))
		return failure[json.RawMessage](KindTransport, 0, MsgNetwork, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return failure[json.RawMessage](KindTransport, resp.StatusCode, MsgNetwork, err.Error())
	}

	c.logger.Debug("api request",
		slog.String("action", action),
		slog.String("method", method),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("api response is not valid JSON",
			slog.String("action", action),
			slog.Int("status", resp.StatusCode))
		return failure[json.RawMessage](KindMalformed, resp.StatusCode, MsgMalformed, err.Error())
	}

	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return Result[json.RawMessage]{
			Data:    env.Data,
			Message: msg,
			Error:   env.Error,
			Kind:    KindDomain,
			Status:  resp.StatusCode,
		}
	}

	return Result[json.RawMessage]{
		Success: true,
		Data:    env.Data,
		Message: env.Message,
		Status:  resp.StatusCode,
	}
}

func (c *Client) actionURL(action string, query url.Values) string {
	u := *c.baseURL
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("action", action)
	u.RawQuery = q.Encode()
	return u.String()
}

// encodeBody serializes the request body. The JSON content type is only set
// for JSON bodies; multipart bodies carry their own boundary type.
func encodeBody(opts RequestOptions) (io.Reader, string, error) {
	switch {
	case opts.JSON != nil && opts.Multipart != nil:
		return nil, "", fmt.Errorf("apiclient: JSON and multipart bodies are exclusive")
	case opts.Multipart != nil:
		return encodeMultipart(opts.Multipart)
	case opts.JSON != nil:
		data, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("apiclient: encode json: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	default:
		return nil, "", nil
	}
}

func encodeMultipart(m *Multipart) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, vs := range m.Fields {
		for _, v := range vs {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("apiclient: write field %s: %w", k, err)
			}
		}
	}
	for _, f := range m.Files {
		if f.Content == nil {
			continue
		}
		part, err := createFilePart(w, f)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", fmt.Errorf("apiclient: copy file %s: %w", f.Filename, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("apiclient: close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func createFilePart(w *multipart.Writer, f FilePart) (io.Writer, error) {
	if f.ContentType == "" {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return nil, fmt.Errorf("apiclient: create file part: %w", err)
		}
		return part, nil
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(f.Field), escapeQuotes(f.Filename)))
	h.Set("Content-Type", f.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("apiclient: create file part: %w", err)
	}
	return part, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
