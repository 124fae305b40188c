package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	EventPackagesUpdated = "packages.updated"
	EventBoardsUpdated   = "boards.updated"
)

// Event tells a user's other sessions that a list was replaced. Receivers
// decide whether to reload; nothing is merged.
type Event struct {
	ID      uint64 `json:"id"`
	Type    string `json:"type"`
	UserID  int64  `json:"user_id"`
	Payload any    `json:"payload,omitempty"`
}

// EventBus fans events out to the open streams of one user.
type EventBus struct {
	seq  atomic.Uint64
	mu   sync.RWMutex
	subs map[int64]map[chan Event]struct{}
}

func NewEventBus() *EventBus { return &EventBus{subs: make(map[int64]map[chan Event]struct{})} }

func (b *EventBus) Subscribe(userID int64) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	set := b.subs[userID]
	if set == nil {
		set = make(map[chan Event]struct{})
		b.subs[userID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[userID], ch)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish stamps ev with the next id and delivers it. A subscriber whose
// buffer is full misses the event. It returns how many received it.
func (b *EventBus) Publish(ev Event) int {
	ev.ID = b.seq.Add(1)
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for ch := range b.subs[ev.UserID] {
		select {
		case ch <- ev:
			n++
		default:
		}
	}
	return n
}

// ServeSSE streams userID's events until the client goes away.
func (b *EventBus) ServeSSE(w http.ResponseWriter, r *http.Request, userID int64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")

	events, cancel := b.Subscribe(userID)
	defer cancel()

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
			flusher.Flush()
		}
	}
}
