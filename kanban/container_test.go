package kanban

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pkgradar/search"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSaver struct {
	mu        sync.Mutex
	packages  []Cards
	boards    [][]string
	pkgErr    error
	boardsErr error
}

func (f *fakeSaver) SavePackages(_ context.Context, _ string, cards Cards) (Cards, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packages = append(f.packages, cards)
	if f.pkgErr != nil {
		return nil, f.pkgErr
	}
	return cards, nil
}

func (f *fakeSaver) SaveBoards(_ context.Context, _ string, boards []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards = append(f.boards, boards)
	if f.boardsErr != nil {
		return nil, f.boardsErr
	}
	return boards, nil
}

// stored is what a replace-all backend would hold after the saves so far.
func (f *fakeSaver) stored() Cards {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.packages) == 0 {
		return nil
	}
	return f.packages[len(f.packages)-1]
}

func (f *fakeSaver) packageCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.packages)
}

// fakeClock also stands in for time.AfterFunc; scheduled funcs run on Fire.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []func()
	waits  []time.Duration
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := len(c.timers)
	c.timers = append(c.timers, f)
	c.waits = append(c.waits, d)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		armed := c.timers[i] != nil
		c.timers[i] = nil
		return armed
	}
}

func (c *fakeClock) Fire() {
	c.mu.Lock()
	var due []func()
	for i, f := range c.timers {
		if f != nil {
			due = append(due, f)
			c.timers[i] = nil
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestContainer(t *testing.T, cards Cards, boards []string, saver Saver) (*Container, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewContainer("u1", cards, boards, Options{
		Saver:     saver,
		Logger:    quietLogger(),
		Now:       clock.Now,
		AfterFunc: clock.AfterFunc,
	})
	t.Cleanup(c.Wait)
	return c, clock
}

func TestContainerMove(t *testing.T) {
	t.Run("scenario from two backlog cards", func(t *testing.T) {
		c, _ := newTestContainer(t, Cards{
			{ID: "1", Status: StatusBacklog},
			{ID: "2", Status: StatusBacklog},
		}, nil, nil)

		require.True(t, c.Move("2", StatusProduction))
		assert.Equal(t, Cards{
			{ID: "1", Status: StatusBacklog},
			{ID: "2", Status: StatusProduction},
		}, c.Cards())
	})

	t.Run("idempotent when status already matches", func(t *testing.T) {
		c, _ := newTestContainer(t, sample(), nil, nil)
		before := c.Cards()
		assert.False(t, c.Move("a", StatusBacklog))
		assert.Equal(t, before, c.Cards())
	})
}

func TestContainerReorder(t *testing.T) {
	t.Run("same card leaves state unchanged", func(t *testing.T) {
		c, _ := newTestContainer(t, sample(), nil, nil)
		before := c.Cards()
		assert.False(t, c.Reorder("b", "b"))
		assert.Equal(t, before, c.Cards())
	})

	t.Run("repeated reorder settles", func(t *testing.T) {
		for _, pair := range [][2]string{{"a", "b"}, {"a", "c"}, {"d", "a"}} {
			c, _ := newTestContainer(t, sample(), nil, nil)
			require.True(t, c.Reorder(pair[0], pair[1]))
			first := c.Cards()
			assert.False(t, c.Reorder(pair[0], pair[1]))
			assert.Equal(t, first, c.Cards(), "pair %v", pair)
		}
	})

	t.Run("other operations reset the settled pair", func(t *testing.T) {
		c, _ := newTestContainer(t, sample(), nil, nil)
		require.True(t, c.Reorder("a", "b"))
		c.Move("c", StatusArchive)
		require.True(t, c.Reorder("a", "b"))
		assert.Equal(t, []string{"a", "b", "c", "d"}, ids(c.Cards()))
	})
}

func TestContainerAdd(t *testing.T) {
	saver := &fakeSaver{}
	c, _ := newTestContainer(t, sample(), nil, saver)
	c.Add(Card{ID: "e", Status: StatusStaging, Board: "web"})

	cards := c.Cards()
	require.Len(t, cards, 5)
	assert.Equal(t, "e", cards[4].ID)
	c.Wait()
	assert.Zero(t, saver.packageCalls())
}

func TestContainerSelectPackage(t *testing.T) {
	c, _ := newTestContainer(t, sample(), []string{"web", "cli"}, &fakeSaver{})
	require.True(t, c.SelectBoard("cli"))

	pkg := search.Package{ID: "p9", PackageName: "vue", OwnerAvatar: "https://a/v.png", Description: "ui", Stars: 12000}
	card, ok := c.SelectPackage(pkg, StatusStaging, "")
	require.True(t, ok)
	assert.Equal(t, Card{ID: "p9", Name: "vue", Avatar: "https://a/v.png", Description: "ui", Stars: 12000, Status: StatusStaging, Board: "cli"}, card)
	assert.Equal(t, "p9", c.Cards()[len(c.Cards())-1].ID)

	_, ok = c.SelectPackage(pkg, StatusBacklog, "web")
	assert.False(t, ok, "duplicate id")
	_, ok = c.SelectPackage(search.Package{}, StatusBacklog, "web")
	assert.False(t, ok, "missing id")
	_, ok = c.SelectPackage(search.Package{ID: "p10"}, Status("later"), "web")
	assert.False(t, ok, "unknown status")
}

func TestContainerSelectPackageOnAllTab(t *testing.T) {
	c, _ := newTestContainer(t, nil, []string{"web"}, &fakeSaver{})
	require.Equal(t, AllBoard, c.CurrentBoard())

	card, ok := c.SelectPackage(search.Package{ID: "p1", PackageName: "vue"}, StatusBacklog, "")
	require.True(t, ok)
	assert.Empty(t, card.Board, "All is never stored on a card")

	card, ok = c.SelectPackage(search.Package{ID: "p2", PackageName: "react"}, StatusBacklog, AllBoard)
	require.True(t, ok)
	assert.Empty(t, card.Board)

	card, ok = c.SelectPackage(search.Package{ID: "p3", PackageName: "svelte"}, StatusBacklog, "web")
	require.True(t, ok)
	assert.Equal(t, "web", card.Board)
}

func TestContainerRemove(t *testing.T) {
	saver := &fakeSaver{}
	var results []SaveResult
	var mu sync.Mutex
	c := NewContainer("u1", sample(), nil, Options{
		Saver:  saver,
		Logger: quietLogger(),
		OnSave: func(r SaveResult) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		},
	})
	c.OpenPackageModal()

	require.True(t, c.Remove(context.Background(), "c"))
	c.Wait()

	cards := c.Cards()
	assert.Len(t, cards, 3)
	assert.Equal(t, -1, cards.Index("c"))
	require.Equal(t, 1, saver.packageCalls())
	assert.Equal(t, cards, saver.packages[0])
	assert.False(t, c.PackageModalOpen())
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)

	assert.False(t, c.Remove(context.Background(), "c"))
	c.Wait()
	assert.Equal(t, 1, saver.packageCalls())
}

func TestContainerFailedSaveKeepsOptimisticState(t *testing.T) {
	saver := &fakeSaver{pkgErr: errors.New("boom")}
	c, _ := newTestContainer(t, sample(), nil, saver)
	c.OpenPackageModal()

	c.Remove(context.Background(), "a")
	c.Wait()

	assert.Len(t, c.Cards(), 3)
	assert.False(t, c.PackageModalOpen())
}

func TestContainerPersistIncludesLaterEdits(t *testing.T) {
	saver := &fakeSaver{}
	c, _ := newTestContainer(t, sample(), nil, saver)

	c.Remove(context.Background(), "a")
	c.Move("b", StatusArchive)
	c.Persist(context.Background())
	c.Wait()

	require.Equal(t, 2, saver.packageCalls())
	assert.Equal(t, []string{"b", "c", "d"}, ids(saver.packages[0]))
	assert.Equal(t, StatusBacklog, saver.packages[0][0].Status)
	stored := saver.stored()
	assert.Equal(t, c.Cards(), stored)
	assert.Equal(t, StatusArchive, stored[stored.Index("b")].Status)
}

func TestContainerSavesArriveInOrder(t *testing.T) {
	saver := &fakeSaver{}
	c, _ := newTestContainer(t, nil, nil, saver)

	for i := range 30 {
		c.Add(Card{ID: fmt.Sprint(i), Status: StatusBacklog})
		c.Persist(context.Background())
	}
	c.Wait()

	require.Equal(t, 30, saver.packageCalls())
	for i, cards := range saver.packages {
		assert.Len(t, cards, i+1, "save %d", i)
	}
	assert.Equal(t, c.Cards(), saver.stored())
}

func TestContainerDragThrottle(t *testing.T) {
	t.Run("last call in the window runs when it ends", func(t *testing.T) {
		c, clock := newTestContainer(t, sample(), nil, nil)

		require.True(t, c.DragPosition("a", "b"))
		assert.False(t, c.DragPosition("a", "d"), "deferred")
		assert.False(t, c.DragPosition("a", "c"), "replaces the deferred call")
		assert.Equal(t, []string{"b", "a", "c", "d"}, ids(c.Cards()))
		assert.Equal(t, []time.Duration{DefaultPositionWindow}, clock.Waits())

		clock.Advance(DefaultPositionWindow)
		clock.Fire()
		assert.Equal(t, []string{"b", "c", "a", "d"}, ids(c.Cards()))
	})

	t.Run("a call after the window runs at once", func(t *testing.T) {
		c, clock := newTestContainer(t, sample(), nil, nil)

		require.True(t, c.DragPosition("a", "b"))
		assert.False(t, c.DragPosition("d", "a"))
		clock.Advance(DefaultPositionWindow)
		require.True(t, c.DragPosition("c", "b"))
		clock.Fire()
		assert.Equal(t, []string{"c", "b", "a", "d"}, ids(c.Cards()), "the stale deferred call was dropped")
	})

	t.Run("persist applies the deferred call first", func(t *testing.T) {
		saver := &fakeSaver{}
		c, _ := newTestContainer(t, sample(), nil, saver)

		require.True(t, c.DragPosition("a", "b"))
		require.False(t, c.DragPosition("a", "c"))
		c.Persist(context.Background())
		c.Wait()
		assert.Equal(t, []string{"b", "c", "a", "d"}, ids(saver.stored()))
	})

	t.Run("status has no window by default", func(t *testing.T) {
		c, clock := newTestContainer(t, sample(), nil, nil)
		assert.True(t, c.DragStatus("b", StatusStaging))
		assert.True(t, c.DragStatus("b", StatusProduction))
		assert.Empty(t, clock.Waits())
	})
}

func TestContainerBoardSelection(t *testing.T) {
	c, _ := newTestContainer(t, sample(), []string{"web", "cli"}, nil)

	assert.Equal(t, []string{"All", "web", "cli"}, c.Tabs())
	assert.Equal(t, AllBoard, c.CurrentBoard())
	assert.Len(t, c.Visible(), 4)

	require.True(t, c.SelectTab(2))
	assert.Equal(t, "cli", c.CurrentBoard())
	assert.Equal(t, []string{"b", "d"}, ids(c.Visible()))
	assert.Len(t, c.Cards(), 4, "canonical list untouched")

	assert.False(t, c.SelectTab(9))
	assert.False(t, c.SelectBoard("nope"))
	require.True(t, c.SelectBoard("web"))
	assert.Equal(t, 1, c.TabIndex())
}

func TestContainerAddBoard(t *testing.T) {
	t.Run("selects the new board", func(t *testing.T) {
		saver := &fakeSaver{}
		c, _ := newTestContainer(t, nil, []string{"web"}, saver)
		c.OpenBoardModal()
		c.SetBoardName("infra")

		require.NoError(t, c.AddBoard(context.Background()))
		assert.Equal(t, [][]string{{"web", "infra"}}, saver.boards)
		assert.Equal(t, "infra", c.CurrentBoard())
		assert.Equal(t, 2, c.TabIndex())
		assert.False(t, c.BoardModalOpen())
		assert.Empty(t, c.BoardName())
	})

	t.Run("failure closes the modal and clears the name", func(t *testing.T) {
		saver := &fakeSaver{boardsErr: errors.New("offline")}
		c, _ := newTestContainer(t, nil, []string{"web"}, saver)
		c.OpenBoardModal()
		c.SetBoardName("infra")

		assert.Error(t, c.AddBoard(context.Background()))
		assert.Equal(t, []string{"web"}, c.Boards())
		assert.False(t, c.BoardModalOpen())
		assert.Empty(t, c.BoardName())
	})

	t.Run("existing name is rejected and keeps the modal", func(t *testing.T) {
		saver := &fakeSaver{}
		c, _ := newTestContainer(t, nil, []string{"web", "cli"}, saver)
		c.OpenBoardModal()
		c.SetBoardName(" web ")

		assert.ErrorIs(t, c.AddBoard(context.Background()), ErrBoardExists)
		assert.Empty(t, saver.boards)
		assert.True(t, c.BoardModalOpen())
		assert.Equal(t, AllBoard, c.CurrentBoard())
	})

	t.Run("blank name is rejected locally", func(t *testing.T) {
		saver := &fakeSaver{}
		c, _ := newTestContainer(t, nil, nil, saver)
		assert.ErrorIs(t, c.AddBoard(context.Background()), ErrBoardName)
		assert.Empty(t, saver.boards)
	})
}

func TestContainerRemoveBoard(t *testing.T) {
	t.Run("All is reserved", func(t *testing.T) {
		saver := &fakeSaver{}
		c, _ := newTestContainer(t, nil, []string{"web", "cli"}, saver)

		assert.ErrorIs(t, c.RemoveBoard(context.Background()), ErrReservedBoard)
		assert.Equal(t, []string{"web", "cli"}, c.Boards())
		assert.Empty(t, saver.boards, "no network call")
	})

	t.Run("removes the selected board", func(t *testing.T) {
		saver := &fakeSaver{}
		c, _ := newTestContainer(t, sample(), []string{"web", "cli"}, saver)
		require.True(t, c.SelectBoard("web"))

		require.NoError(t, c.RemoveBoard(context.Background()))
		assert.Equal(t, []string{"cli"}, c.Boards())
		assert.Equal(t, AllBoard, c.CurrentBoard())
		assert.Len(t, c.Cards(), 4)
	})

	t.Run("failure still resets the tab", func(t *testing.T) {
		saver := &fakeSaver{boardsErr: errors.New("offline")}
		c, _ := newTestContainer(t, nil, []string{"web"}, saver)
		require.True(t, c.SelectBoard("web"))

		assert.Error(t, c.RemoveBoard(context.Background()))
		assert.Equal(t, 0, c.TabIndex())
		assert.Equal(t, []string{"web"}, c.Boards())
	})
}
