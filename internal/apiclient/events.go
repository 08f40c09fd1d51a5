package apiclient

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Event is one message of the backend change stream.
type Event struct {
	ID   string
	Type string
	Data string
}

// Stats are the dashboard counters.
type Stats struct {
	Total     int `json:"total"`
	Published int `json:"published"`
	Drafts    int `json:"drafts"`
	Views     int `json:"views"`
}

// GetStats returns post counters. Requires a token.
func (c *Client) GetStats(ctx context.Context) Result[Stats] {
	return decode[Stats](c.Request(ctx, "getStats", RequestOptions{}))
}

// eventsURL is the stream endpoint next to the action endpoint.
func (c *Client) eventsURL() string {
	u := *c.baseURL
	u.RawQuery = ""
	u.Path = strings.TrimSuffix(u.Path, "/") + "/events"
	return u.String()
}

// Events subscribes to the backend change stream and calls fn for each event
// until ctx is done, the stream ends or fn returns an error. Requires a token.
func (c *Client) Events(ctx context.Context, fn func(Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.eventsURL(), nil)
	if err != nil {
		return fmt.Errorf("apiclient: events request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	// The stream outlives the client timeout.
	hc := *c.http
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: events: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindDomain, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	var ev Event
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.Type != "" || ev.Data != "" {
				if err := fn(ev); err != nil {
					return err
				}
			}
			ev = Event{}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "id:"):
			ev.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "event:"):
			ev.Type = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if ev.Data != "" {
				ev.Data += "\n"
			}
			ev.Data += data
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("apiclient: read events: %w", err)
	}
	return nil
}
