package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"pkgradar/kanban"
)

const minColumnWidth = 24

func (m Model) View() string {
	var b strings.Builder
	header := headerStyle.Render("pkgradar") + " " + mutedStyle.Render("@"+m.username)
	if m.status != "" {
		header += "  " + m.status
	}
	if m.saving > 0 {
		header += "  " + mutedStyle.Render(fmt.Sprintf("(%d saving)", m.saving))
	}
	b.WriteString(header + "\n")
	b.WriteString(m.tabs() + "\n")

	switch m.mode {
	case modeSearch:
		b.WriteString(modalStyle.Render(m.search.View()))
	case modeAddPackage:
		st := kanban.Statuses[m.pickStatus]
		board := m.pickBoard
		if board == "" {
			board = mutedStyle.Render("no board")
		}
		title := fmt.Sprintf("Add package to %s · %s", st.Title(), board)
		b.WriteString(modalStyle.Render(columnTitleStyle.Render(title) + "\n\n" + m.picker.View()))
	case modeAddBoard:
		b.WriteString(modalStyle.Render(columnTitleStyle.Render("New board") + "\n\n" + m.boardInput.View()))
	case modeAlert:
		b.WriteString(modalStyle.BorderForeground(Destructive).Render(errorStyle.Render(m.alert)))
	default:
		b.WriteString(m.columns())
	}
	b.WriteString("\n" + helpStyle.Render(m.help()))
	return b.String()
}

func (m Model) tabs() string {
	tabs := m.c.Tabs()
	cur := m.c.TabIndex()
	out := make([]string, len(tabs))
	for i, t := range tabs {
		if i == cur {
			out[i] = tabActive.Render(t)
		} else {
			out[i] = tabStyle.Render(t)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, out...)
}

func (m Model) columnWidth() int {
	if m.width == 0 {
		return minColumnWidth
	}
	w := m.width/len(kanban.Statuses) - 4
	return max(w, minColumnWidth)
}

// columnAt maps a terminal column to a status column, or -1.
func (m Model) columnAt(x int) int {
	w := m.columnWidth() + columnStyle.GetHorizontalBorderSize()
	if x < 0 || x/w >= len(kanban.Statuses) {
		return -1
	}
	return x / w
}

func (m Model) columns() string {
	width := m.columnWidth()
	groups := m.c.Visible().ByStatus()
	cols := make([]string, len(kanban.Statuses))
	for i, st := range kanban.Statuses {
		cards := groups[st]
		lines := []string{columnTitleStyle.Render(fmt.Sprintf("%s (%d)", st.Title(), len(cards)))}
		for j, c := range cards {
			lines = append(lines, m.renderCard(c, i == m.col && j == m.row, width))
		}
		style := columnStyle
		if i == m.col {
			style = columnFocusStyle
		}
		cols[i] = style.Width(width).Render(strings.Join(lines, "\n"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func (m Model) renderCard(c kanban.Card, focus bool, width int) string {
	name := c.Name
	if name == "" {
		name = c.ID
	}
	line := truncate(name, width-10) + " " + mutedStyle.Render("★ "+humanize.Comma(int64(c.Stars)))
	switch {
	case m.mode == modeMove && c.ID == m.grabbed:
		return cardMoveStyle.Render(line)
	case focus:
		return cardFocusStyle.Render("> " + line)
	}
	out := cardStyle.Render("  " + line)
	if c.Description != "" {
		out += "\n  " + mutedStyle.Render(truncate(c.Description, width-4))
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
