package main

import (
	"time"

	"pkgradar/kanban"
)

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	// KanbanBoards never contains the reserved "All" board.
	KanbanBoards []string     `json:"kanban_boards"`
	Packages     kanban.Cards `json:"packages"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Profile is what an OAuth provider tells us about a user.
type Profile struct {
	ProviderUserID string
	Username       string
	Name           string
	AvatarURL      string
}
