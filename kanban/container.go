package kanban

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"pkgradar/search"
)

// DefaultPositionWindow is the throttle window for drag reordering.
const DefaultPositionWindow = 500 * time.Millisecond

// Saver persists whole lists on behalf of a user. Both calls replace the
// stored value; nothing is merged.
type Saver interface {
	SavePackages(ctx context.Context, userID string, cards Cards) (Cards, error)
	SaveBoards(ctx context.Context, userID string, boards []string) ([]string, error)
}

// SaveResult is reported after every package save.
type SaveResult struct {
	Cards Cards
	Err   error
}

type Options struct {
	Saver  Saver
	Logger *slog.Logger
	// StatusWindow throttles DragStatus. Zero admits every call.
	StatusWindow time.Duration
	// PositionWindow throttles DragPosition. Zero means
	// DefaultPositionWindow, negative admits every call.
	PositionWindow time.Duration
	Now            func() time.Time
	// AfterFunc schedules trailing drag calls. Defaults to time.AfterFunc.
	AfterFunc AfterFunc
	// OnSave runs on the save goroutine once a package save finishes.
	OnSave func(SaveResult)
}

// Container is the optimistic editor for one user's card list. Every
// operation mutates local state synchronously; saves send the full list and
// never roll local state back.
type Container struct {
	mu      sync.Mutex
	userID  string
	cards   Cards
	boards  []string
	current string

	packageModal bool
	boardModal   bool
	boardName    string

	// last applied reorder; an identical consecutive reorder is settled
	lastReorder [2]string

	// each save waits for the one before it so the server sees snapshots
	// in the order they were taken
	lastSave chan struct{}

	saver    Saver
	log      *slog.Logger
	onSave   func(SaveResult)
	status   *throttle
	position *throttle
	wg       sync.WaitGroup
}

func NewContainer(userID string, cards Cards, boards []string, opts Options) *Container {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}
	pos := opts.PositionWindow
	switch {
	case pos == 0:
		pos = DefaultPositionWindow
	case pos < 0:
		pos = 0
	}
	return &Container{
		userID:   userID,
		cards:    cards.Clone(),
		boards:   NormalizeBoards(boards),
		current:  AllBoard,
		saver:    opts.Saver,
		log:      opts.Logger,
		onSave:   opts.OnSave,
		status:   newThrottle(opts.StatusWindow, opts.Now, opts.AfterFunc),
		position: newThrottle(pos, opts.Now, opts.AfterFunc),
	}
}

// Cards returns a copy of the canonical list.
func (c *Container) Cards() Cards {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cards.Clone()
}

// Visible returns the cards on the selected board.
func (c *Container) Visible() Cards {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cards.OnBoard(c.current)
}

func (c *Container) Boards() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.boards)
}

func (c *Container) Tabs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Tabs(c.boards)
}

func (c *Container) CurrentBoard() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Container) TabIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return max(slices.Index(Tabs(c.boards), c.current), 0)
}

// SelectTab selects the board at tab index i. Out of range indexes are
// ignored.
func (c *Container) SelectTab(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	tabs := Tabs(c.boards)
	if i < 0 || i >= len(tabs) {
		return false
	}
	c.current = tabs[i]
	return true
}

func (c *Container) SelectBoard(label string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if label != AllBoard && !slices.Contains(c.boards, label) {
		return false
	}
	c.current = label
	return true
}

// Move re-categorizes a card. It reports whether state changed.
func (c *Container) Move(id string, status Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.move(id, status)
}

func (c *Container) move(id string, status Status) bool {
	i := c.cards.Index(id)
	if i < 0 || c.cards[i].Status == status {
		return false
	}
	c.cards = c.cards.WithMoved(id, status)
	c.lastReorder = [2]string{}
	return true
}

// Reorder moves card id to the position afterID currently holds.
func (c *Container) Reorder(id, afterID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reorder(id, afterID)
}

func (c *Container) reorder(id, afterID string) bool {
	if id == afterID || c.lastReorder == [2]string{id, afterID} {
		return false
	}
	if c.cards.Index(id) < 0 || c.cards.Index(afterID) < 0 {
		return false
	}
	c.cards = c.cards.WithReordered(id, afterID)
	c.lastReorder = [2]string{id, afterID}
	return true
}

// DragStatus is Move for drag-hover events. Inside the status window only
// the last call survives and it is applied when the window ends; the
// result reports whether the call was applied now.
func (c *Container) DragStatus(id string, status Status) bool {
	return c.status.do(func() bool { return c.Move(id, status) })
}

// DragPosition is Reorder for drag-hover events, throttled like DragStatus
// with the position window.
func (c *Container) DragPosition(id, afterID string) bool {
	return c.position.do(func() bool { return c.Reorder(id, afterID) })
}

// flushDrags applies drag calls still waiting for their window.
func (c *Container) flushDrags() {
	c.status.flush()
	c.position.flush()
}

// Add appends a card. Nothing is saved until Persist.
func (c *Container) Add(card Card) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cards = c.cards.WithAdded(card)
	c.lastReorder = [2]string{}
}

// SelectPackage files a package search hit under status and board. An
// empty or AllBoard board means the selected board, or no label while
// AllBoard is selected. A package already on the list is not added twice.
func (c *Container) SelectPackage(p search.Package, status Status, board string) (Card, bool) {
	if board == "" || board == AllBoard {
		board = c.CurrentBoard()
	}
	if board == AllBoard {
		board = ""
	}
	card := Card{
		ID:          p.ID,
		Name:        p.PackageName,
		Avatar:      p.OwnerAvatar,
		Description: p.Description,
		Stars:       p.Stars,
		Status:      status,
		Board:       board,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if card.ID == "" || !status.Valid() || c.cards.Index(card.ID) >= 0 {
		return Card{}, false
	}
	c.cards = c.cards.WithAdded(card)
	c.lastReorder = [2]string{}
	return card, true
}

// Remove drops a card and starts a full-list save.
func (c *Container) Remove(ctx context.Context, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cards.Index(id) < 0 {
		return false
	}
	c.cards = c.cards.WithRemoved(id)
	c.lastReorder = [2]string{}
	c.saveLocked(ctx)
	return true
}

// Persist applies pending drag calls and starts a full-list save of the
// current state. It is the drag-end and add-package submit path and is
// never throttled.
func (c *Container) Persist(ctx context.Context) {
	c.flushDrags()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saveLocked(ctx)
}

// saveLocked snapshots the list and queues its save behind the previous
// one. c.mu must be held.
func (c *Container) saveLocked(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	cards := c.cards.Clone()
	prev, done := c.lastSave, make(chan struct{})
	c.lastSave = done
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		c.log.Info("updating user packages", "user", c.userID, "count", len(cards))
		var (
			saved Cards
			err   error
		)
		if c.saver != nil {
			saved, err = c.saver.SavePackages(ctx, c.userID, cards)
		}
		if err != nil {
			c.log.Error("update user packages", "user", c.userID, "err", err)
		} else {
			c.log.Info("user packages updated", "user", c.userID, "count", len(saved))
		}
		c.ClosePackageModal()
		if c.onSave != nil {
			c.onSave(SaveResult{Cards: saved, Err: err})
		}
	}()
}

// Wait applies pending drag calls and blocks until every started save has
// finished.
func (c *Container) Wait() {
	c.flushDrags()
	c.wg.Wait()
}

func (c *Container) OpenPackageModal() {
	c.mu.Lock()
	c.packageModal = true
	c.mu.Unlock()
}

func (c *Container) ClosePackageModal() {
	c.mu.Lock()
	c.packageModal = false
	c.mu.Unlock()
}

func (c *Container) PackageModalOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.packageModal
}

func (c *Container) OpenBoardModal() {
	c.mu.Lock()
	c.boardModal = true
	c.mu.Unlock()
}

func (c *Container) CloseBoardModal() {
	c.mu.Lock()
	c.boardModal = false
	c.mu.Unlock()
}

func (c *Container) BoardModalOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boardModal
}

func (c *Container) SetBoardName(name string) {
	c.mu.Lock()
	c.boardName = name
	c.mu.Unlock()
}

func (c *Container) BoardName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boardName
}

// AddBoard saves the board list with the pending board name appended and
// selects the new board. A blank or reserved name yields ErrBoardName and
// an existing one ErrBoardExists, both leaving the modal open; otherwise
// the modal closes and the name clears whatever the save outcome.
func (c *Container) AddBoard(ctx context.Context) error {
	c.mu.Lock()
	name := strings.TrimSpace(c.boardName)
	switch {
	case name == "" || name == AllBoard:
		c.mu.Unlock()
		return ErrBoardName
	case slices.Contains(c.boards, name):
		c.mu.Unlock()
		return ErrBoardExists
	}
	next := append(slices.Clone(c.boards), name)
	c.mu.Unlock()

	c.log.Info("adding board", "user", c.userID, "board", name)
	saved, err := c.saveBoards(ctx, next)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.boardModal = false
	c.boardName = ""
	if err != nil {
		c.log.Error("update user boards", "user", c.userID, "err", err)
		return err
	}
	c.boards = NormalizeBoards(saved)
	if slices.Contains(c.boards, name) {
		c.current = name
	}
	return nil
}

// RemoveBoard deletes the selected board label. AllBoard cannot be removed
// and yields ErrReservedBoard without contacting the saver. Cards filed
// under the removed label are left untouched.
func (c *Container) RemoveBoard(ctx context.Context) error {
	c.mu.Lock()
	current := c.current
	if current == AllBoard {
		c.mu.Unlock()
		return ErrReservedBoard
	}
	next := slices.DeleteFunc(slices.Clone(c.boards), func(b string) bool { return b == current })
	c.mu.Unlock()

	c.log.Info("removing board", "user", c.userID, "board", current)
	saved, err := c.saveBoards(ctx, next)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = AllBoard
	if err != nil {
		c.log.Error("update user boards", "user", c.userID, "err", err)
		return err
	}
	c.boards = NormalizeBoards(saved)
	return nil
}

func (c *Container) saveBoards(ctx context.Context, boards []string) ([]string, error) {
	if c.saver == nil {
		return boards, nil
	}
	return c.saver.SaveBoards(ctx, c.userID, boards)
}
