/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"blockstudio/internal/block"
	"blockstudio/internal/catalog"
	"blockstudio/internal/ident"
	applog "blockstudio/internal/log"
	"blockstudio/internal/style"
)

type fakeStore struct {
	mu      sync.Mutex
	pages   map[string]Page
	gates   map[string]chan struct{}
	entered chan string
	saved   map[string][]byte
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pages:   map[string]Page{},
		gates:   map[string]chan struct{}{},
		entered: make(chan string, 4),
		saved:   map[string][]byte{},
	}
}

func (s *fakeStore) FetchPage(ctx context.Context, name string) (Page, error) {
	s.mu.Lock()
	gate := s.gates[name]
	p, ok := s.pages[name]
	s.mu.Unlock()
	if gate != nil {
		s.entered <- name
		<-gate
	}
	if !ok {
		return Page{}, errors.New("no such page")
	}
	return p, nil
}

func (s *fakeStore) SavePage(_ context.Context, id string, tree []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[id] = tree
	return nil
}

func (s *fakeStore) DeletePage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

type note struct {
	level Level
	msg   string
}

type fakeNotifier struct {
	answer bool
	asked  []string
	notes  []note
}

func (n *fakeNotifier) Confirm(_ context.Context, msg string) bool {
	n.asked = append(n.asked, msg)
	return n.answer
}

func (n *fakeNotifier) Notify(level Level, msg string) { n.notes = append(n.notes, note{level, msg}) }

func newController(t *testing.T) (*Controller, *fakeStore, *fakeNotifier) {
	t.Helper()
	store := newFakeStore()
	n := &fakeNotifier{}
	c := New(Options{
		Engine:   &block.Engine{IDs: &ident.Sequence{}, Logger: applog.Nop()},
		Catalog:  catalog.Default(),
		Store:    store,
		Notifier: n,
		Logger:   applog.Nop(),
	})
	return c, store, n
}

func mustAdd(t *testing.T, c *Controller, parent *block.Block, kind string) *block.Block {
	t.Helper()
	b, err := c.AddChild(parent, block.Spec{Kind: kind}, block.End)
	require.NoError(t, err)
	return b
}

func marshal(t *testing.T, b *block.Block) string {
	t.Helper()
	data, err := block.Marshal(b)
	require.NoError(t, err)
	return string(data)
}

func TestSelectBlock(t *testing.T) {
	c, _, _ := newController(t)
	a := mustAdd(t, c, c.Root(), "div")
	b := mustAdd(t, c, c.Root(), "p")
	require.Equal(t, []string{b.ID()}, c.SelectedIDs())

	c.SelectBlock(a, false)
	require.Equal(t, []string{a.ID()}, c.SelectedIDs())
	c.SelectBlock(b, true)
	c.SelectBlock(b, true)
	require.Equal(t, []string{a.ID(), b.ID()}, c.SelectedIDs())
	require.Equal(t, []*block.Block{a, b}, c.Selection())

	c.SelectSlot("default")
	require.Equal(t, "default", c.SelectedSlot())
	c.SelectBlock(a, false)
	require.Equal(t, "", c.SelectedSlot())
	c.Hover(b.ID())
	require.Equal(t, b.ID(), c.Hovered())
}

func TestRemoveRootIsRefusedWithWarning(t *testing.T) {
	c, _, n := newController(t)
	require.False(t, c.RemoveBlock(c.Root(), true))
	require.Len(t, n.notes, 1)
	require.Equal(t, LevelWarning, n.notes[0].level)
	require.NotNil(t, c.Root())

	cp, err := c.Duplicate(c.Root())
	require.NoError(t, err)
	require.Nil(t, cp)
	require.NoError(t, c.ToggleVisibility(c.Root()))
	require.Len(t, n.notes, 3)
	require.True(t, c.Root().IsVisible(style.Desktop))
}

func TestSoftDeleteOnNarrowBreakpoint(t *testing.T) {
	c, _, _ := newController(t)
	a := mustAdd(t, c, c.Root(), "div")
	next := mustAdd(t, c, c.Root(), "p")
	a.SetStyle(style.Desktop, "display", "grid")

	c.SetBreakpoint(style.Mobile)
	require.True(t, c.RemoveBlock(a, false))
	require.Same(t, a, c.Find(a.ID()))
	v, ok := a.StyleAt(style.Mobile, "display")
	require.True(t, ok)
	require.Equal(t, "none", v)
	require.Equal(t, "grid", a.Style("display"))
	_, ok = a.StyleAt(style.Tablet, "display")
	require.False(t, ok)
	require.Equal(t, []string{next.ID()}, c.SelectedIDs())

	require.False(t, c.RemoveBlock(a, false), "already hidden")

	ok, err := c.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, a.IsVisible(style.Mobile))
}

func TestHardDelete(t *testing.T) {
	c, _, _ := newController(t)
	a := mustAdd(t, c, c.Root(), "div")
	next := mustAdd(t, c, c.Root(), "p")
	require.True(t, c.RemoveBlock(a, false))
	require.Nil(t, c.Find(a.ID()))
	require.Equal(t, []string{next.ID()}, c.SelectedIDs())

	c.SetBreakpoint(style.Tablet)
	require.True(t, c.RemoveBlock(next, true))
	require.Nil(t, c.Find(next.ID()))
	require.Empty(t, c.SelectedIDs())
}

func TestDeleteAndDuplicateSelection(t *testing.T) {
	c, _, _ := newController(t)
	a := mustAdd(t, c, c.Root(), "div")
	b := mustAdd(t, c, c.Root(), "p")
	mustAdd(t, c, c.Root(), "span")

	c.SelectBlock(a, false)
	c.SelectBlock(b, true)
	cp, err := c.DuplicateSelection()
	require.NoError(t, err)
	require.Nil(t, cp)

	require.Equal(t, 2, c.DeleteSelection(false))
	require.Empty(t, c.SelectedIDs())
	require.Len(t, c.Root().Children(), 1)

	c.SelectBlock(c.Root().Children()[0], false)
	cp, err = c.DuplicateSelection()
	require.NoError(t, err)
	require.NotNil(t, cp)
	require.Equal(t, []string{cp.ID()}, c.SelectedIDs())
	require.Len(t, c.Root().Children(), 2)
}

func TestUndoRedoThroughController(t *testing.T) {
	c, _, _ := newController(t)
	initial := marshal(t, c.Root())

	b := mustAdd(t, c, c.Root(), "Button")
	require.NoError(t, c.SetStyle(b, "background-color", "red"))
	require.NoError(t, c.SetProp(b, "label", "Go"))
	final := marshal(t, c.Root())

	for i := 0; i < 3; i++ {
		ok, err := c.Undo()
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, initial, marshal(t, c.Root()))
	require.Empty(t, c.SelectedIDs())
	ok, err := c.Undo()
	require.NoError(t, err)
	require.False(t, ok)

	for i := 0; i < 3; i++ {
		ok, err := c.Redo()
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, final, marshal(t, c.Root()))

	_, err = c.Undo()
	require.NoError(t, err)
	require.True(t, c.CanRedo())
	require.NoError(t, c.SetProp(c.Find(b.ID()), "size", "lg"))
	require.False(t, c.CanRedo())

	require.NoError(t, c.DeleteProp(c.Find(b.ID()), "size"))
	require.NoError(t, c.DeleteProp(c.Find(b.ID()), "size"))
	_, err = c.Undo()
	require.NoError(t, err)
	require.Equal(t, "lg", c.Find(b.ID()).Props["size"])
}

func TestUndoKeepsBlocksOfUnknownKinds(t *testing.T) {
	c, _, _ := newController(t)
	w, err := c.AddChild(c.Root(), block.Spec{Kind: "Widget", Props: map[string]any{"x": 1.0}}, block.End)
	require.NoError(t, err)
	withWidget := marshal(t, c.Root())

	mustAdd(t, c, c.Root(), "div")
	ok, err := c.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, withWidget, marshal(t, c.Root()))

	got := c.Find(w.ID())
	require.NotNil(t, got)
	require.Equal(t, "Widget", got.Kind)
	require.Equal(t, block.RoleNone, got.Role)
	require.Equal(t, map[string]any{"x": 1.0}, got.Props)

	ok, err = c.Redo()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Widget", c.Find(w.ID()).Kind)
	require.Len(t, c.Root().Children(), 2)
}

func TestMoveAndSlotsAreUndoable(t *testing.T) {
	c, _, _ := newController(t)
	card := mustAdd(t, c, c.Root(), "Card")
	btn, err := c.InsertSlotBlock(card, "actions", block.Spec{Kind: "Button"}, block.End)
	require.NoError(t, err)
	require.Equal(t, []string{btn.ID()}, c.SelectedIDs())
	before := marshal(t, c.Root())

	require.NoError(t, c.Move(btn, c.Root(), "", 0))
	require.Same(t, c.Root(), btn.Parent())
	_, err = c.Undo()
	require.NoError(t, err)
	require.Equal(t, before, marshal(t, c.Root()))
	moved := c.Find(btn.ID())
	require.Equal(t, "actions", moved.SlotName())

	require.NoError(t, c.SetSlotText(c.Find(card.ID()), "actions", "plain"))
	require.Nil(t, c.Find(btn.ID()))
	require.Empty(t, c.SelectedIDs())

	require.NoError(t, c.AddSlot(c.Find(card.ID()), "footer"))
	require.NoError(t, c.AddSlot(c.Find(card.ID()), "footer"))
	require.NoError(t, c.RemoveSlot(c.Find(card.ID()), "footer"))
	require.NoError(t, c.RemoveSlot(c.Find(card.ID()), "footer"))
	require.ErrorIs(t, c.Move(c.Root(), card, "", 0), block.ErrRootProtected)
}

func TestPaddingAndMarginUseActiveBreakpoint(t *testing.T) {
	c, _, _ := newController(t)
	b := mustAdd(t, c, c.Root(), "div")
	c.SetBreakpoint(style.Tablet)
	require.NoError(t, c.SetPadding(b, "4px 8px"))
	require.NoError(t, c.SetMargin(b, "1px"))
	require.Equal(t, "4px 8px", b.Padding(style.Tablet))
	require.Equal(t, "1px", b.Margin(style.Tablet))
	require.Nil(t, c.Style(b, "paddingTop"))
	require.Error(t, c.SetPadding(b, "1px 2px 3px 4px 5px"))
	require.Equal(t, "4px 8px", b.Padding(style.Tablet))
}

func TestSetPageDraftOverPublished(t *testing.T) {
	c, store, _ := newController(t)
	store.pages["home"] = Page{
		ID:        "page-1",
		Name:      "home",
		Draft:     []byte(`{"id":"root","kind":"div","role":"root","children":[{"id":"d","kind":"p"}]}`),
		Published: []byte(`{"id":"root","kind":"div","role":"root","children":[{"id":"pub","kind":"p"}]}`),
	}
	store.pages["about"] = Page{
		ID:        "page-2",
		Name:      "about",
		Published: []byte(`[{"id":"root","kind":"div","children":[{"id":"pub","kind":"p"}]}]`),
	}
	ctx := context.Background()
	require.NoError(t, c.SetPage(ctx, "home"))
	id, name := c.Page()
	require.Equal(t, "page-1", id)
	require.Equal(t, "home", name)
	require.NotNil(t, c.Find("d"))
	require.False(t, c.Settling())

	require.NoError(t, c.SetPage(ctx, "about"))
	require.NotNil(t, c.Find("pub"))
	require.False(t, c.CanUndo())
}

func TestSetPageFailureKeepsCurrentPage(t *testing.T) {
	c, store, n := newController(t)
	ctx := context.Background()
	store.pages["ok"] = Page{ID: "p1", Name: "ok", Draft: []byte(`{"id":"root","kind":"div","role":"root"}`)}
	store.pages["bad"] = Page{ID: "p2", Name: "bad", Draft: []byte(`{"id":"root","kind":"div","role":"root","children":[{"id":"a","kind":"p"},{"id":"a","kind":"p"}]}`)}
	require.NoError(t, c.SetPage(ctx, "ok"))
	root := c.Root()

	err := c.SetPage(ctx, "bad")
	require.ErrorIs(t, err, block.ErrMalformedTree)
	require.Same(t, root, c.Root())
	id, _ := c.Page()
	require.Equal(t, "p1", id)
	require.False(t, c.Settling())
	require.Equal(t, LevelError, n.notes[len(n.notes)-1].level)

	require.Error(t, c.SetPage(ctx, "missing"))
}

func TestSetPageLastWriteWins(t *testing.T) {
	c, store, _ := newController(t)
	ctx := context.Background()
	store.pages["slow"] = Page{ID: "slow", Name: "slow", Draft: []byte(`{"id":"root","kind":"div","role":"root","children":[{"id":"s","kind":"p"}]}`)}
	store.pages["fast"] = Page{ID: "fast", Name: "fast", Draft: []byte(`{"id":"root","kind":"div","role":"root","children":[{"id":"f","kind":"p"}]}`)}
	gate := make(chan struct{})
	store.gates["slow"] = gate

	x := mustAdd(t, c, c.Root(), "div")
	c.ClearSelection()

	slowErr := make(chan error, 1)
	go func() { slowErr <- c.SetPage(ctx, "slow") }()
	require.Equal(t, "slow", <-store.entered)
	require.True(t, c.Settling())

	c.SelectBlock(x, false)
	require.Empty(t, c.SelectedIDs())
	require.False(t, c.RemoveBlock(x, true))
	_, err := c.AddChild(c.Root(), block.Spec{Kind: "p"}, block.End)
	require.ErrorIs(t, err, ErrSettling)

	store.mu.Lock()
	delete(store.gates, "slow")
	store.mu.Unlock()
	require.NoError(t, c.SetPage(ctx, "fast"))
	close(gate)
	require.ErrorIs(t, <-slowErr, ErrSuperseded)

	id, _ := c.Page()
	require.Equal(t, "fast", id)
	require.NotNil(t, c.Find("f"))
	require.Nil(t, c.Find("s"))
	require.False(t, c.Settling())
}

func TestSaveAndDeletePage(t *testing.T) {
	c, store, n := newController(t)
	ctx := context.Background()
	require.ErrorIs(t, c.SavePage(ctx), ErrNoPage)

	store.pages["home"] = Page{ID: "p1", Name: "home"}
	require.NoError(t, c.SetPage(ctx, "home"))
	require.True(t, c.Root().IsRoot())
	mustAdd(t, c, c.Root(), "div")
	require.NoError(t, c.SavePage(ctx))
	require.JSONEq(t, marshal(t, c.Root()), string(store.saved["p1"]))

	deleted, err := c.DeletePage(ctx)
	require.NoError(t, err)
	require.False(t, deleted)
	require.Len(t, n.asked, 1)
	require.Empty(t, store.deleted)

	n.answer = true
	deleted, err = c.DeletePage(ctx)
	require.NoError(t, err)
	require.True(t, deleted)
	require.Equal(t, []string{"p1"}, store.deleted)
	require.False(t, c.Root().HasChildren())
	id, _ := c.Page()
	require.Equal(t, "", id)
}

func TestFitToContainer(t *testing.T) {
	c, _, _ := newController(t)
	require.False(t, c.FitToContainer(Metrics{ContainerWidth: 1200, CanvasWidth: 600}))
	require.Equal(t, 1.0, c.Transform().Scale)

	require.True(t, c.FitToContainer(Metrics{ContainerWidth: 1200, ContainerTop: 100, CanvasWidth: 600, CanvasTop: 50, LayoutDone: true}))
	require.Equal(t, Transform{Scale: 1, TranslateY: 250}, c.Transform())

	require.True(t, c.FitToContainer(Metrics{ContainerWidth: 900, ContainerTop: 100, CanvasWidth: 600, CanvasTop: 50, LayoutDone: true}))
	tr := c.Transform()
	require.InDelta(t, 0.75, tr.Scale, 1e-9)
	require.InDelta(t, 200/0.75, tr.TranslateY, 1e-9)
	require.Equal(t, 0.0, tr.TranslateX)
}

func TestObserversSeeEdits(t *testing.T) {
	c, _, _ := newController(t)
	rec := &block.Recorder{}
	stop := c.Observe(rec)
	b := mustAdd(t, c, c.Root(), "div")
	require.NoError(t, c.SetStyle(b, "color", "red"))
	require.Equal(t, []string{"created:" + b.ID(), "mutated:root", "mutated:" + b.ID()}, rec.Kinds())

	stop()
	rec.Reset()
	mustAdd(t, c, c.Root(), "p")
	require.Empty(t, rec.Changes)
}

func TestSetPageInstallsTreeOfWinningLoad(t *testing.T) {
	c, store, _ := newController(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b"} {
		store.pages[name] = Page{ID: name, Name: name, Draft: []byte(`{"id":"root","kind":"div","role":"root","children":[{"id":"` + name + `","kind":"p"}]}`)}
	}
	for i := 0; i < 50; i++ {
		var wg sync.WaitGroup
		errs := make(chan error, 2)
		for _, name := range []string{"a", "b"} {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				errs <- c.SetPage(ctx, name)
			}(name)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				require.ErrorIs(t, err, ErrSuperseded)
			}
		}
		id, _ := c.Page()
		require.NotEmpty(t, id)
		require.NotNil(t, c.Find(id), "page %s installed with another page's tree", id)
		require.False(t, c.Settling())
	}
}
