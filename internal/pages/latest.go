package pages

import (
	"context"
	"errors"
	"sync"
)

// ErrStale is returned for a fetch that was superseded by a newer one in the
// same slot. Its result must not be applied.
var ErrStale = errors.New("pages: superseded by a newer request")

// Latest tracks the in-flight fetch of each slot (typically client id plus
// view name). Starting a fetch cancels the previous one in its slot.
type Latest struct {
	mu    sync.Mutex
	seq   uint64
	slots map[string]*inflight
}

type inflight struct {
	id     uint64
	cancel context.CancelFunc
}

// NewLatest returns an empty tracker.
func NewLatest() *Latest {
	return &Latest{slots: make(map[string]*inflight)}
}

func (l *Latest) begin(ctx context.Context, slot string) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slots == nil {
		l.slots = make(map[string]*inflight)
	}
	if prev, ok := l.slots[slot]; ok {
		prev.cancel()
	}
	l.seq++
	l.slots[slot] = &inflight{id: l.seq, cancel: cancel}
	return ctx, l.seq
}

// finish releases the slot and reports whether id was still the latest.
func (l *Latest) finish(slot string, id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.slots[slot]
	if !ok || cur.id != id {
		return false
	}
	cur.cancel()
	delete(l.slots, slot)
	return true
}

// Pending returns the number of slots with a fetch in flight.
func (l *Latest) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// Fetch runs fetch as the latest task of slot. When another Fetch for the
// same slot starts before this one completes, the context passed to fetch is
// cancelled and ErrStale is returned instead of the value.
func Fetch[T any](ctx context.Context, l *Latest, slot string, fetch func(context.Context) T) (T, error) {
	fctx, id := l.begin(ctx, slot)
	v := fetch(fctx)
	if !l.finish(slot, id) {
		var zero T
		return zero, ErrStale
	}
	return v, nil
}
