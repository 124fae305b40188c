package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"pkgradar/search"
)

// Searcher is the typeahead backend.
type Searcher interface {
	Search(ctx context.Context, input string) ([]search.Suggestion, error)
}

// suggestionsMsg carries a search response tagged with the request that
// produced it.
type suggestionsMsg struct {
	owner string
	seq   uint64
	items []search.Suggestion
	err   error
}

// selectedMsg is emitted when the user picks a suggestion.
type selectedMsg struct {
	suggestion search.Suggestion
}

// SearchModel is the typeahead widget. Every edit issues a request;
// responses older than the latest request are discarded.
type SearchModel struct {
	name     string
	input    textinput.Model
	searcher Searcher
	log      *slog.Logger

	seq     uint64
	items   []search.Suggestion
	cursor  int
	dropped int
}

// NewSearchModel builds a widget. name tells responses of several widgets
// apart.
func NewSearchModel(name string, s Searcher, log *slog.Logger) SearchModel {
	ti := textinput.New()
	ti.Prompt = "search › "
	ti.Placeholder = "packages, owners, tags, @users"
	ti.CharLimit = 120
	return SearchModel{name: name, input: ti, searcher: s, log: log}
}

func (m *SearchModel) Focus() tea.Cmd { return m.input.Focus() }

// Reset clears the input and suggestions. Requests still in flight are
// ignored when they land.
func (m *SearchModel) Reset() {
	m.input.SetValue("")
	m.input.Blur()
	m.items = nil
	m.cursor = 0
	m.seq++
}

func (m SearchModel) Value() string { return m.input.Value() }

func (m SearchModel) Suggestions() []search.Suggestion { return m.items }

func (m SearchModel) query(seq uint64, input string) tea.Cmd {
	return func() tea.Msg {
		items, err := m.searcher.Search(context.Background(), input)
		return suggestionsMsg{owner: m.name, seq: seq, items: items, err: err}
	}
}

func (m SearchModel) Update(msg tea.Msg) (SearchModel, tea.Cmd) {
	switch msg := msg.(type) {
	case suggestionsMsg:
		if msg.owner != m.name {
			return m, nil
		}
		if msg.seq != m.seq {
			m.dropped++
			return m, nil
		}
		if msg.err != nil {
			m.log.Error("search", "err", msg.err)
			return m, nil
		}
		m.items = msg.items
		m.cursor = 0
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "ctrl+p":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "ctrl+n":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
			return m, nil
		case "enter":
			return m, m.selected()
		}
	}
	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	after := m.input.Value()
	if after == before {
		return m, cmd
	}
	m.seq++
	if strings.TrimSpace(after) == "" {
		m.items = nil
		m.cursor = 0
		return m, cmd
	}
	return m, tea.Batch(cmd, m.query(m.seq, after))
}

// selected picks the highlighted suggestion, or the literal typed text
// when there are none.
func (m SearchModel) selected() tea.Cmd {
	var s search.Suggestion
	switch {
	case m.cursor < len(m.items):
		s = m.items[m.cursor]
	case strings.TrimSpace(m.input.Value()) != "":
		s = search.Literal(search.Normalize(m.input.Value()))
	default:
		return nil
	}
	return func() tea.Msg { return selectedMsg{suggestion: s} }
}

func (m SearchModel) View() string {
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteString("\n")
	for i, s := range m.items {
		prefix := "  "
		if i == m.cursor {
			prefix = selectedStyle.Render("> ")
		}
		b.WriteString(prefix + renderSuggestion(s) + "\n")
	}
	return b.String()
}

func renderParts(parts []search.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Highlight {
			b.WriteString(highlightStyle.Render(p.Text))
		} else {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func renderSuggestion(s search.Suggestion) string {
	switch s.Kind {
	case search.KindPackages:
		p := s.Package
		title := p.PackageName
		var tags []string
		if s.Highlights != nil {
			title = renderParts(s.Highlights.Title)
			for _, t := range s.Highlights.Tags {
				tags = append(tags, renderParts(t))
			}
		}
		line := fmt.Sprintf("%s%s  ★ %s", mutedStyle.Render(p.OwnerName+"/"), title, humanize.Comma(int64(p.Stars)))
		if len(tags) > 0 {
			line += "  " + mutedStyle.Render("#") + strings.Join(tags, mutedStyle.Render(" #"))
		}
		return line
	case search.KindUsers:
		u := s.User
		title, sub := u.Username, u.Name
		if s.Highlights != nil {
			title = renderParts(s.Highlights.Title)
			sub = renderParts(s.Highlights.Subtitle)
		}
		return "@" + title + "  " + mutedStyle.Render("(") + sub + mutedStyle.Render(")")
	default:
		return mutedStyle.Render("search for ") + fmt.Sprintf("%q", s.Input)
	}
}
