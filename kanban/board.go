package kanban

import (
	"errors"
	"strings"
)

// AllBoard is the reserved pseudo-board showing every card. It is never
// persisted.
const AllBoard = "All"

var (
	ErrReservedBoard = errors.New("not allowed to remove All")
	ErrBoardName     = errors.New("board name required")
	ErrBoardExists   = errors.New("board already exists")
)

// NormalizeBoards trims labels and drops blanks, duplicates and AllBoard.
func NormalizeBoards(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || l == AllBoard || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// Tabs prefixes the stored labels with AllBoard.
func Tabs(labels []string) []string {
	return append([]string{AllBoard}, NormalizeBoards(labels)...)
}
