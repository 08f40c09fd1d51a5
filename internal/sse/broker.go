// Package sse streams content change notifications to admin clients as
// Server-Sent Events.
package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// StatsEvent is broadcast, at most once per throttle interval, after any
// content change so dashboards can refresh their counters.
const StatsEvent = "stats.updated"

const (
	keepAliveInterval = 25 * time.Second
	retryMillis       = 5000
	clientBuffer      = 64
)

// Event is one SSE message. ID is optional; the broker numbers the events it
// broadcasts.
type Event struct {
	ID   string `json:"-"`
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Change is the payload of resource change events.
type Change struct {
	Resource string `json:"resource"`
	Kind     string `json:"kind"`
	ID       int64  `json:"id"`
}

// Broker fans events out to connected clients.
//
// One loop goroutine owns the subscriber set, the event sequence and the
// stats throttle; public methods hand it work over channels.
type Broker struct {
	statsMin time.Duration

	joins   chan chan []byte
	leaves  chan chan []byte
	events  chan Event
	changes chan Change

	counts  chan chan int
	closing chan struct{}
	done    chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits stats.updated at most once per
// statsThrottle.
func NewBroker(statsThrottle time.Duration) *Broker {
	if statsThrottle <= 0 {
		statsThrottle = 2 * time.Second
	}

	b := &Broker{
		statsMin: statsThrottle,
		joins:    make(chan chan []byte),
		leaves:   make(chan chan []byte),
		events:   make(chan Event, 256),
		changes:  make(chan Change, 256),
		counts:   make(chan chan int),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	go b.loop()
	return b
}

// Encode renders an event in the text/event-stream format.
func Encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("sse: encode %s: %w", event.Type, err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "event: %s\n", event.Type)
	if event.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", event.ID)
	}
	fmt.Fprintf(&buf, "data: %s\n\n", payload)
	return buf.Bytes(), nil
}

func (b *Broker) loop() {
	defer close(b.done)

	subscribers := make(map[chan []byte]struct{})
	var (
		seq       uint64
		lastStats time.Time
	)

	send := func(event Event) {
		seq++
		event.ID = strconv.FormatUint(seq, 10)
		raw, err := Encode(event)
		if err != nil {
			return
		}
		for ch := range subscribers {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than block the loop.
			}
		}
	}

	for {
		select {
		case <-b.closing:
			for ch := range subscribers {
				close(ch)
			}
			return

		case ch := <-b.joins:
			subscribers[ch] = struct{}{}

		case ch := <-b.leaves:
			if _, ok := subscribers[ch]; ok {
				delete(subscribers, ch)
				close(ch)
			}

		case reply := <-b.counts:
			reply <- len(subscribers)

		case event := <-b.events:
			send(event)

		case c := <-b.changes:
			send(Event{Type: c.Resource + "." + c.Kind, Data: c})

			if now := time.Now(); now.Sub(lastStats) >= b.statsMin {
				lastStats = now
				send(Event{Type: StatsEvent, Data: map[string]string{}})
			}
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.closing)
	}
	<-b.done
}

// Subscribe adds a client and returns its channel. The channel is closed by
// Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.joins <- ch:
	case <-b.done:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leaves <- ch:
	case <-b.done:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	reply := make(chan int, 1)
	select {
	case b.counts <- reply:
		return <-reply
	case <-b.done:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- event:
	case <-b.done:
	}
}

// PublishChange announces that resource id was created, updated or deleted,
// followed by a throttled stats.updated.
func (b *Broker) PublishChange(resource, kind string, id int64) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changes <- Change{Resource: resource, Kind: kind, ID: id}:
	case <-b.done:
	}
}

// ServeHTTP streams events to one client until it disconnects.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	StartStream(w)
	fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAliveInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

// StartStream writes the event-stream response headers.
func StartStream(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}
