package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/starford/brightline/internal/apperr"
)

// Kind classifies a failed call.
type Kind int

// Failure kinds. KindNone is used for successful results.
const (
	KindNone Kind = iota
	// KindTransport covers network, DNS, TLS and read failures.
	KindTransport
	// KindMalformed means the backend answered with a body that is not a
	// valid envelope.
	KindMalformed
	// KindDomain means the backend answered with success=false.
	KindDomain
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransport:
		return "transport"
	case KindMalformed:
		return "malformed"
	case KindDomain:
		return "domain"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// User-facing messages for failures the backend did not describe.
const (
	MsgNetwork   = "Network error. Please check your connection and try again."
	MsgMalformed = "Invalid response from server"
	MsgUnknown   = "Request failed"
)

// Result is the uniform envelope returned by every call.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	// Kind and Status are filled in by the client, not the backend.
	Kind   Kind `json:"-"`
	Status int  `json:"-"`
}

// Err returns nil for a successful result and an *Error otherwise.
func (r Result[T]) Err() error {
	if r.Success {
		return nil
	}
	return &Error{Kind: r.Kind, Status: r.Status, Message: r.Message, Detail: r.Error}
}

// Unauthorized reports whether the backend rejected the bearer token.
func (r Result[T]) Unauthorized() bool {
	return !r.Success && r.Status == http.StatusUnauthorized
}

// Error is the Go error form of a failed Result.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Detail  string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = MsgUnknown
	}
	if e.Detail != "" && e.Detail != msg {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, msg, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Is maps HTTP statuses onto the shared sentinel errors.
func (e *Error) Is(target error) bool {
	switch target {
	case apperr.ErrNotFound:
		return e.Status == http.StatusNotFound
	case apperr.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case apperr.ErrConflict:
		return e.Status == http.StatusConflict
	case apperr.ErrInvalidInput:
		return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
	}
	return false
}

func failure[T any](kind Kind, status int, message, detail string) Result[T] {
	return Result[T]{Kind: kind, Status: status, Message: message, Error: detail}
}

// decode converts a raw result into a typed one. A successful envelope whose
// data does not fit T is reported as malformed.
func decode[T any](raw Result[json.RawMessage]) Result[T] {
	out := Result[T]{
		Success: raw.Success,
		Message: raw.Message,
		Error:   raw.Error,
		Kind:    raw.Kind,
		Status:  raw.Status,
	}
	if !raw.Success || len(raw.Data) == 0 || string(raw.Data) == "null" {
		return out
	}
	if err := json.Unmarshal(raw.Data, &out.Data); err != nil {
		return failure[T](KindMalformed, raw.Status, MsgMalformed, err.Error())
	}
	return out
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
