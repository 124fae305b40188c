// Package ui is the terminal view shell: the board grouped by status
// column, board tabs, and the package search widget.
package ui

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"pkgradar/kanban"
	"pkgradar/search"
)

type mode int

const (
	modeBoard mode = iota
	modeMove       // a card is grabbed; arrows drag it
	modeSearch
	modeAddPackage
	modeAddBoard
	modeAlert
)

// savedMsg reports a finished package save.
type savedMsg kanban.SaveResult

// boardDoneMsg reports an add or remove board round trip.
type boardDoneMsg struct {
	op  string
	err error
}

type Model struct {
	c        *kanban.Container
	username string
	log      *slog.Logger

	search     SearchModel // global typeahead
	picker     SearchModel // add-package modal
	boardInput textinput.Model

	mode       mode
	col, row   int
	grabbed    string
	pickStatus int
	pickBoard  string // board for the add-package modal; "" until chosen

	route  string // last navigation target
	status string
	alert  string
	saving int

	width, height int
}

func New(c *kanban.Container, username string, s Searcher, log *slog.Logger) Model {
	if log == nil {
		log = slog.Default()
	}
	bi := textinput.New()
	bi.Prompt = "board › "
	bi.Placeholder = "name"
	bi.CharLimit = 40
	return Model{
		c:          c,
		username:   username,
		log:        log,
		search:     NewSearchModel("search", s, log),
		picker:     NewSearchModel("picker", s, log),
		boardInput: bi,
	}
}

// Run opens the board for the given user and blocks until the user quits.
// Saves still in flight when the program ends are waited for.
func Run(userID, username string, cards kanban.Cards, boards []string, saver kanban.Saver, s Searcher, log *slog.Logger) error {
	var prog atomic.Pointer[tea.Program]
	c := kanban.NewContainer(userID, cards, boards, kanban.Options{
		Saver:  saver,
		Logger: log,
		OnSave: func(r kanban.SaveResult) {
			if p := prog.Load(); p != nil {
				p.Send(savedMsg(r))
			}
		},
	})
	p := tea.NewProgram(New(c, username, s, log), tea.WithAltScreen(), tea.WithMouseCellMotion())
	prog.Store(p)
	_, err := p.Run()
	c.Wait()
	return err
}

func (m Model) Init() tea.Cmd { return nil }

// column returns the visible cards of the focused status column.
func (m Model) column(col int) kanban.Cards {
	return m.c.Visible().ByStatus()[kanban.Statuses[col]]
}

func (m Model) focused() (kanban.Card, bool) {
	cards := m.column(m.col)
	if m.row < 0 || m.row >= len(cards) {
		return kanban.Card{}, false
	}
	return cards[m.row], true
}

func (m *Model) clampRow() {
	n := len(m.column(m.col))
	if m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
}

// follow puts focus on the grabbed card wherever it ended up.
func (m *Model) follow(id string) {
	for col, st := range kanban.Statuses {
		cards := m.c.Visible().ByStatus()[st]
		if i := cards.Index(id); i >= 0 {
			m.col, m.row = col, i
			return
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case savedMsg:
		m.saving--
		if msg.Err == nil {
			m.status = "saved"
		}
		if m.mode == modeAddPackage && !m.c.PackageModalOpen() {
			m.mode = modeBoard
			m.picker.Reset()
		}
		m.clampRow()
		return m, nil
	case boardDoneMsg:
		return m.boardDone(msg)
	case suggestionsMsg:
		m.picker, _ = m.picker.Update(msg)
		m.search, _ = m.search.Update(msg)
		return m, nil
	case selectedMsg:
		return m.selected(msg.suggestion)
	case tea.MouseMsg:
		return m.updateMouse(msg)
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.mode {
		case modeAlert:
			m.alert = ""
			m.mode = modeBoard
			return m, nil
		case modeMove:
			return m.updateMove(msg)
		case modeSearch:
			return m.updateSearch(msg)
		case modeAddPackage:
			return m.updateAddPackage(msg)
		case modeAddBoard:
			return m.updateAddBoard(msg)
		}
		return m.updateBoard(msg)
	}
	return m, nil
}

func (m Model) updateBoard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "tab":
		m.c.SelectTab((m.c.TabIndex() + 1) % len(m.c.Tabs()))
		m.clampRow()
	case "shift+tab":
		n := len(m.c.Tabs())
		m.c.SelectTab((m.c.TabIndex() + n - 1) % n)
		m.clampRow()
	case "left", "h":
		if m.col > 0 {
			m.col--
			m.clampRow()
		}
	case "right", "l":
		if m.col < len(kanban.Statuses)-1 {
			m.col++
			m.clampRow()
		}
	case "up", "k":
		if m.row > 0 {
			m.row--
		}
	case "down", "j":
		if m.row < len(m.column(m.col))-1 {
			m.row++
		}
	case "m":
		if card, ok := m.focused(); ok {
			m.grabbed = card.ID
			m.mode = modeMove
			m.status = "moving " + card.Name
		}
	case "x", "delete":
		if card, ok := m.focused(); ok && m.c.Remove(context.Background(), card.ID) {
			m.saving++
			m.status = "removed " + card.Name
			m.clampRow()
		}
	case "a":
		m.c.OpenPackageModal()
		m.mode = modeAddPackage
		m.pickStatus = m.col
		m.pickBoard = ""
		if b := m.c.CurrentBoard(); b != kanban.AllBoard {
			m.pickBoard = b
		}
		return m, m.picker.Focus()
	case "/":
		m.mode = modeSearch
		return m, m.search.Focus()
	case "b":
		m.c.OpenBoardModal()
		m.mode = modeAddBoard
		m.boardInput.SetValue("")
		return m, m.boardInput.Focus()
	case "D":
		c := m.c
		return m, func() tea.Msg {
			return boardDoneMsg{op: "remove", err: c.RemoveBoard(context.Background())}
		}
	}
	return m, nil
}

// updateMove moves the grabbed card. Left and right change its status,
// up and down swap it with its neighbour. Key presses are discrete, so they
// skip the drag-hover throttles. Dropping persists the list.
func (m Model) updateMove(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id := m.grabbed
	cards := m.column(m.col)
	i := cards.Index(id)
	switch msg.String() {
	case "left", "h":
		if m.col > 0 {
			m.c.Move(id, kanban.Statuses[m.col-1])
		}
	case "right", "l":
		if m.col < len(kanban.Statuses)-1 {
			m.c.Move(id, kanban.Statuses[m.col+1])
		}
	case "up", "k":
		if i > 0 {
			m.c.Reorder(cards[i-1].ID, id)
		}
	case "down", "j":
		if i >= 0 && i < len(cards)-1 {
			m.c.Reorder(id, cards[i+1].ID)
		}
	case "enter", "m", "esc":
		return m.drop()
	}
	m.follow(id)
	return m, nil
}

// updateMouse drags a grabbed card across columns with the pointer.
// Motion events arrive in bursts, so they go through the drag throttle;
// releasing the button drops the card.
func (m Model) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.mode != modeMove {
		return m, nil
	}
	switch msg.Action {
	case tea.MouseActionMotion:
		if col := m.columnAt(msg.X); col >= 0 && col != m.col {
			m.c.DragStatus(m.grabbed, kanban.Statuses[col])
			m.follow(m.grabbed)
		}
	case tea.MouseActionRelease:
		return m.drop()
	}
	return m, nil
}

func (m Model) drop() (tea.Model, tea.Cmd) {
	m.mode = modeBoard
	m.grabbed = ""
	m.saving++
	m.status = "saving…"
	m.c.Persist(context.Background())
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		m.mode = modeBoard
		m.search.Reset()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m Model) updateAddPackage(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.c.ClosePackageModal()
		m.mode = modeBoard
		m.picker.Reset()
		return m, nil
	case "tab":
		m.pickStatus = (m.pickStatus + 1) % len(kanban.Statuses)
		return m, nil
	case "shift+tab":
		m.pickBoard = nextBoard(m.c.Boards(), m.pickBoard)
		return m, nil
	}
	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	return m, cmd
}

func (m Model) updateAddBoard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.c.CloseBoardModal()
		m.mode = modeBoard
		m.boardInput.Blur()
		return m, nil
	case "enter":
		m.c.SetBoardName(m.boardInput.Value())
		m.boardInput.Blur()
		c := m.c
		return m, func() tea.Msg {
			return boardDoneMsg{op: "add", err: c.AddBoard(context.Background())}
		}
	}
	var cmd tea.Cmd
	m.boardInput, cmd = m.boardInput.Update(msg)
	return m, cmd
}

// nextBoard cycles through the stored boards, starting at the first.
func nextBoard(boards []string, cur string) string {
	if len(boards) == 0 {
		return ""
	}
	i := slices.Index(boards, cur)
	return boards[(i+1)%len(boards)]
}

func (m Model) boardDone(msg boardDoneMsg) (tea.Model, tea.Cmd) {
	switch {
	case errors.Is(msg.err, kanban.ErrReservedBoard):
		m.alert = "Not allowed to remove All"
		m.mode = modeAlert
		return m, nil
	case errors.Is(msg.err, kanban.ErrBoardName), errors.Is(msg.err, kanban.ErrBoardExists):
		m.status = msg.err.Error()
		return m, m.boardInput.Focus()
	case msg.err != nil:
		m.log.Error(msg.op+" board", "err", msg.err)
	}
	if m.mode == modeAddBoard && !m.c.BoardModalOpen() {
		m.mode = modeBoard
	}
	m.clampRow()
	return m, nil
}

func (m Model) selected(s search.Suggestion) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeAddPackage:
		if s.Kind != search.KindPackages || s.Package == nil {
			return m, nil
		}
		if m.pickBoard == "" && len(m.c.Boards()) > 0 {
			m.status = "choose a board first (shift+tab)"
			return m, nil
		}
		st := kanban.Statuses[m.pickStatus]
		card, ok := m.c.SelectPackage(*s.Package, st, m.pickBoard)
		if !ok {
			m.status = s.Package.PackageName + " is already on the list"
			return m, nil
		}
		m.status = "adding " + card.Name
		m.saving++
		m.c.Persist(context.Background())
		return m, nil
	case modeSearch:
		m.route = s.Route
		m.status = "→ " + s.Route
		m.mode = modeBoard
		m.search.Reset()
	}
	return m, nil
}

func (m Model) help() string {
	switch m.mode {
	case modeMove:
		return "←/→ status  ↑/↓ position  enter drop"
	case modeSearch:
		return "↑/↓ choose  enter open  esc close"
	case modeAddPackage:
		return "type to search  ↑/↓ choose  tab status  shift+tab board  enter add  esc cancel"
	case modeAddBoard:
		return "enter save  esc cancel"
	case modeAlert:
		return "any key to continue"
	}
	return strings.Join([]string{
		"←/→/↑/↓ move", "tab board", "m grab", "x remove", "a add package",
		"/ search", "b add board", "D remove board", "q quit",
	}, "  ")
}
