package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusScopesByUser(t *testing.T) {
	bus := NewEventBus()
	mine, cancelMine := bus.Subscribe(1)
	defer cancelMine()
	theirs, cancelTheirs := bus.Subscribe(2)
	defer cancelTheirs()

	assert.Equal(t, 1, bus.Publish(Event{Type: EventPackagesUpdated, UserID: 1}))
	assert.Equal(t, 1, bus.Publish(Event{Type: EventBoardsUpdated, UserID: 1}))

	first, second := <-mine, <-mine
	assert.Equal(t, EventPackagesUpdated, first.Type)
	assert.Equal(t, EventBoardsUpdated, second.Type)
	assert.Greater(t, second.ID, first.ID)
	select {
	case <-theirs:
		t.Fatal("event leaked to another user")
	default:
	}
}

func TestEventBusCancelRemovesSubscriber(t *testing.T) {
	bus := NewEventBus()
	ch, cancel := bus.Subscribe(7)
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, bus.Publish(Event{Type: EventBoardsUpdated, UserID: 7}))
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	assert.Empty(t, bus.subs)
}

func TestEventsStream(t *testing.T) {
	a, store, srv := newTestAPI(t)
	u := store.addUser("owner")
	store.addSession(u.ID, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/me/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok")
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	r := bufio.NewReader(res.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	// the subscription exists once the greeting is flushed
	a.bus.Publish(Event{Type: EventBoardsUpdated, UserID: u.ID})
	var name string
	for {
		line, err = r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: ") {
			name = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		}
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	assert.Equal(t, EventBoardsUpdated, name)
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &ev))
	assert.Equal(t, EventBoardsUpdated, ev.Type)
	assert.Equal(t, u.ID, ev.UserID)
}
