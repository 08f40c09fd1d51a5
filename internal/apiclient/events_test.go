package apiclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents_ParsesStream(t *testing.T) {
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "retry: 5000\n\n: ping\n\nevent: post.created\nid: 1\ndata: {\"id\":1}\n\nevent: stats.updated\nid: 2\ndata: {}\n\n")
	}))
	defer srv.Close()

	c, err := New(srv.URL + "/api?ignored=1")
	require.NoError(t, err)
	c.SetToken("tok")

	var got []Event
	err = c.Events(context.Background(), func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "/api/events", path)
	assert.Equal(t, []Event{
		{ID: "1", Type: "post.created", Data: `{"id":1}`},
		{ID: "2", Type: "stats.updated", Data: "{}"},
	}, got)
}

func TestEvents_StopsOnCallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "event: a\ndata: 1\n\nevent: b\ndata: 2\n\n")
	}))
	defer srv.Close()

	c, err := New(srv.URL + "/api")
	require.NoError(t, err)
	stop := errors.New("stop")
	calls := 0
	err = c.Events(context.Background(), func(Event) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestEvents_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New(srv.URL + "/api")
	require.NoError(t, err)
	err = c.Events(context.Background(), func(Event) error { return nil })
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}
