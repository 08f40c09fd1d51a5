package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/brightline/internal/apiclient"
	"github.com/starford/brightline/internal/sse"
)

// events relays the backend change stream to the admin dashboard using the
// browser's own token.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sse.StartStream(w)
	flusher.Flush()

	err := st.client.Events(r.Context(), func(ev apiclient.Event) error {
		data := json.RawMessage(ev.Data)
		if !json.Valid(data) {
			data, _ = json.Marshal(ev.Data)
		}
		msg, err := sse.Encode(sse.Event{ID: ev.ID, Type: ev.Type, Data: data})
		if err != nil {
			return err
		}
		if _, err := w.Write(msg); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && r.Context().Err() == nil {
		s.logger.Warn("event stream", slog.String("error", err.Error()))
	}
}
