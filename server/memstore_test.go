package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pkgradar/kanban"
)

// memStore is an in-memory userStore for handler tests.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*User
	oauth    map[string]int64
	sessions map[string]int64
	failErr  error
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]*User{}, oauth: map[string]int64{}, sessions: map[string]int64{}}
}

func (m *memStore) addUser(username string) User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u := &User{ID: m.nextID, Username: username, Name: username, KanbanBoards: []string{}, Packages: kanban.Cards{}, CreatedAt: time.Now()}
	m.users[u.ID] = u
	return *u
}

func (m *memStore) addSession(userID int64, token string) {
	m.mu.Lock()
	m.sessions[token] = userID
	m.mu.Unlock()
}

func (m *memStore) get(id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	out := *u
	out.KanbanBoards = append([]string{}, u.KanbanBoards...)
	out.Packages = u.Packages.Clone()
	return out, nil
}

func (m *memStore) UserByID(_ context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *memStore) UserBySession(_ context.Context, token string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.sessions[token]
	if !ok {
		return User{}, ErrNotFound
	}
	return m.get(id)
}

func (m *memStore) EnsureOAuthUser(_ context.Context, provider string, p Profile) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := provider + ":" + p.ProviderUserID
	if id, ok := m.oauth[key]; ok {
		m.users[id].Name = p.Name
		m.users[id].AvatarURL = p.AvatarURL
		return m.get(id)
	}
	for id, u := range m.users {
		if strings.EqualFold(u.Username, p.Username) {
			m.oauth[key] = id
			return m.get(id)
		}
	}
	m.nextID++
	m.users[m.nextID] = &User{ID: m.nextID, Username: p.Username, Name: p.Name, AvatarURL: p.AvatarURL,
		KanbanBoards: []string{}, Packages: kanban.Cards{}, CreatedAt: time.Now()}
	m.oauth[key] = m.nextID
	return m.get(m.nextID)
}

func (m *memStore) CreateSession(_ context.Context, userID int64, ttl time.Duration) (string, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok := fmt.Sprintf("sess-%d-%d", userID, len(m.sessions)+1)
	m.sessions[tok] = userID
	return tok, time.Now().Add(ttl), nil
}

func (m *memStore) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
	return nil
}

func (m *memStore) ReplacePackages(_ context.Context, userID int64, cards kanban.Cards) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return User{}, m.failErr
	}
	u, ok := m.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	u.Packages = cards.Clone()
	return m.get(userID)
}

func (m *memStore) ReplaceBoards(_ context.Context, userID int64, boards []string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return User{}, m.failErr
	}
	u, ok := m.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	u.KanbanBoards = kanban.NormalizeBoards(boards)
	return m.get(userID)
}
