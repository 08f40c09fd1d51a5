package web

import (
	"context"
	"encoding/json"
	"log/slog"
)

const flashKey = "flash"

// Flash kinds.
const (
	flashSuccess = "success"
	flashError   = "error"
	flashInfo    = "info"
)

// Flash is a one-shot message that survives a redirect.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) setFlash(ctx context.Context, st *requestState, kind, msg string) {
	raw, err := json.Marshal(Flash{Kind: kind, Message: msg})
	if err != nil {
		return
	}
	if err := st.kv.Set(ctx, flashKey, string(raw)); err != nil {
		s.logger.Warn("store flash", slog.String("error", err.Error()))
	}
}

// popFlash returns the pending flash, if any, and removes it.
func (s *Server) popFlash(ctx context.Context, st *requestState) *Flash {
	raw, ok, err := st.kv.Get(ctx, flashKey)
	if err != nil || !ok {
		return nil
	}
	if err := st.kv.Remove(ctx, flashKey); err != nil {
		s.logger.Warn("clear flash", slog.String("error", err.Error()))
	}
	var f Flash
	if err := json.Unmarshal([]byte(raw), &f); err != nil || f.Message == "" {
		return nil
	}
	return &f
}
