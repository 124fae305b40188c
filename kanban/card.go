// Package kanban holds the card model of a user's package boards and the
// session-side container that edits it.
package kanban

import "slices"

type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusStaging    Status = "staging"
	StatusProduction Status = "production"
	StatusArchive    Status = "archive"
)

// Statuses lists the kanban columns in display order.
var Statuses = []Status{StatusBacklog, StatusStaging, StatusProduction, StatusArchive}

func (s Status) Valid() bool { return slices.Contains(Statuses, s) }

// Title is the column heading.
func (s Status) Title() string {
	switch s {
	case StatusBacklog:
		return "Backlog"
	case StatusStaging:
		return "Staging"
	case StatusProduction:
		return "Production"
	case StatusArchive:
		return "Archive"
	}
	return string(s)
}

// Card is a package a user filed under a board and status. ID is the
// external package identifier.
type Card struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar"`
	Description string `json:"description"`
	Stars       int    `json:"stars"`
	Status      Status `json:"status"`
	Board       string `json:"board"`
}

// Cards is an ordered card list. The With* helpers never modify the
// receiver; they return a new list.
type Cards []Card

func (cs Cards) Index(id string) int {
	return slices.IndexFunc(cs, func(c Card) bool { return c.ID == id })
}

func (cs Cards) Clone() Cards { return slices.Clone(cs) }

// WithMoved sets the status of card id. The original list is returned when
// the card is missing or already has that status.
func (cs Cards) WithMoved(id string, status Status) Cards {
	i := cs.Index(id)
	if i < 0 || cs[i].Status == status {
		return cs
	}
	out := cs.Clone()
	out[i].Status = status
	return out
}

// WithReordered removes card id and reinserts it at the index afterID held
// before the removal.
func (cs Cards) WithReordered(id, afterID string) Cards {
	if id == afterID {
		return cs
	}
	from, to := cs.Index(id), cs.Index(afterID)
	if from < 0 || to < 0 {
		return cs
	}
	card := cs[from]
	out := slices.Delete(cs.Clone(), from, from+1)
	return slices.Insert(out, to, card)
}

func (cs Cards) WithAdded(c Card) Cards {
	out := make(Cards, 0, len(cs)+1)
	out = append(out, cs...)
	return append(out, c)
}

func (cs Cards) WithRemoved(id string) Cards {
	out := make(Cards, 0, len(cs))
	for _, c := range cs {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// OnBoard returns the cards filed under board; AllBoard returns everything.
func (cs Cards) OnBoard(board string) Cards {
	if board == AllBoard || board == "" {
		return cs.Clone()
	}
	out := Cards{}
	for _, c := range cs {
		if c.Board == board {
			out = append(out, c)
		}
	}
	return out
}

// ByStatus groups cards into columns, keeping list order inside a column.
func (cs Cards) ByStatus() map[Status]Cards {
	out := make(map[Status]Cards, len(Statuses))
	for _, c := range cs {
		out[c.Status] = append(out[c.Status], c)
	}
	return out
}
