/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package block

import (
	"testing"

	"github.com/stretchr/testify/require"

	"blockstudio/internal/catalog"
	"blockstudio/internal/ident"
	applog "blockstudio/internal/log"
	"blockstudio/internal/style"
)

func newEngine() (*Engine, *Recorder) {
	rec := &Recorder{}
	return &Engine{IDs: &ident.Sequence{}, Observer: rec, Logger: applog.Nop()}, rec
}

func newRoot(t *testing.T) (*Engine, *Recorder, *Block) {
	t.Helper()
	e, rec := newEngine()
	root, err := e.New(RootTemplate())
	require.NoError(t, err)
	return e, rec, root
}

func add(t *testing.T, e *Engine, parent *Block, spec Spec) *Block {
	t.Helper()
	b, err := e.AddChild(parent, spec, End)
	require.NoError(t, err)
	return b
}

func requireOwnership(t *testing.T, root *Block) {
	t.Helper()
	Walk(root, func(b *Block) bool {
		if b == root {
			require.Nil(t, b.Parent())
			return true
		}
		p := b.Parent()
		require.NotNil(t, p, b.ID())
		inChildren := p.ChildIndex(b.ID()) >= 0
		inSlot := false
		if b.SlotName() != "" {
			if s := p.Slot(b.SlotName()); s != nil {
				for _, x := range s.Blocks() {
					inSlot = inSlot || x == b
				}
			}
		}
		require.True(t, inChildren != inSlot, "block %s owned by children=%v slot=%v", b.ID(), inChildren, inSlot)
		return true
	})
}

func requireUniqueIDs(t *testing.T, root *Block) {
	t.Helper()
	seen := map[string]bool{}
	for _, id := range IDs(root) {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestNewWiresChildrenAndSlots(t *testing.T) {
	e, _ := newEngine()
	b, err := e.New(Spec{
		Kind:     "Card",
		Children: []Spec{{Kind: "p"}},
		Slots: map[string]SlotSpec{
			"actions": {IsList: true, Blocks: []Spec{{Kind: "Button"}}},
			"title":   {Text: "Hello"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Card-1", b.ID())
	require.Equal(t, "Card", b.Label)
	require.Len(t, b.Children(), 1)
	require.Same(t, b, b.Children()[0].Parent())

	actions := b.Slot("actions")
	require.Equal(t, "Card-1:actions", actions.ID)
	require.Equal(t, "Card-1", actions.OwnerID)
	require.True(t, actions.IsList())
	btn := actions.Blocks()[0]
	require.Same(t, b, btn.Parent())
	require.Equal(t, "actions", btn.SlotName())
	require.Equal(t, "Hello", b.Slot("title").Text())
	requireOwnership(t, b)
}

func TestNewRejectsLeafChildrenAndDuplicateIDs(t *testing.T) {
	e, _ := newEngine()
	_, err := e.New(Spec{Kind: "img", Children: []Spec{{Kind: "p"}}})
	require.ErrorIs(t, err, ErrLeafKind)

	_, err = e.New(Spec{Kind: "div", Children: []Spec{{ID: "a", Kind: "p"}, {ID: "a", Kind: "p"}}})
	require.ErrorIs(t, err, ErrDuplicateID)

	_, err = e.New(Spec{})
	require.ErrorIs(t, err, ErrMalformedTree)
	require.False(t, CanHaveChildren("TextInput"))
	require.True(t, CanHaveChildren("Card"))
}

func TestAddChildClampsIndexAndPublishes(t *testing.T) {
	e, rec, root := newRoot(t)
	a := add(t, e, root, Spec{Kind: "div"})
	require.Equal(t, []string{"created:div-1", "mutated:root"}, rec.Kinds())

	first, err := e.AddChild(root, Spec{Kind: "p"}, -3)
	require.NoError(t, err)
	last, err := e.AddChild(root, Spec{Kind: "span"}, 99)
	require.NoError(t, err)
	require.Equal(t, []*Block{first, a, last}, root.Children())
	require.Same(t, root, a.Parent())
	require.Equal(t, 1, a.Index())
	require.Same(t, last, a.Sibling(1))
	require.Same(t, first, a.Sibling(-1))
	require.Nil(t, last.Sibling(1))
}

func TestAddChildGuards(t *testing.T) {
	e, _, root := newRoot(t)
	img := add(t, e, root, Spec{Kind: "img"})
	_, err := e.AddChild(img, Spec{Kind: "p"}, End)
	require.ErrorIs(t, err, ErrLeafKind)
	_, err = e.InsertSlotBlock(img, "default", Spec{Kind: "p"}, End)
	require.ErrorIs(t, err, ErrLeafKind)

	_, err = e.AddChild(root, RootTemplate(), End)
	require.ErrorIs(t, err, ErrRootProtected)

	_, err = e.AddChild(root, Spec{ID: img.ID(), Kind: "p"}, End)
	require.ErrorIs(t, err, ErrDuplicateID)
	require.Len(t, root.Children(), 1)
}

func TestStrictPanicsOnDuplicateID(t *testing.T) {
	e, _, root := newRoot(t)
	a := add(t, e, root, Spec{Kind: "div"})
	Strict = true
	t.Cleanup(func() { Strict = false })
	require.Panics(t, func() {
		_, _ = e.AddChild(root, Spec{ID: a.ID(), Kind: "p"}, End)
	})
}

func TestNestedRootIsRejected(t *testing.T) {
	e, _, root := newRoot(t)
	card := add(t, e, root, Spec{Kind: "Card"})

	_, err := e.AddChild(root, Spec{Kind: "div", Children: []Spec{{Kind: "div", Role: RoleRoot}}}, End)
	require.ErrorIs(t, err, ErrRootProtected)
	_, err = e.InsertSlotBlock(card, "body", Spec{Kind: "div", Slots: map[string]SlotSpec{
		"inner": {IsList: true, Blocks: []Spec{{Kind: "div", Role: RoleRoot}}},
	}}, End)
	require.ErrorIs(t, err, ErrRootProtected)

	roots := 0
	Walk(root, func(b *Block) bool {
		if b.IsRoot() {
			roots++
		}
		return true
	})
	require.Equal(t, 1, roots)
	require.Len(t, root.Children(), 1)
}

// scripted hands out ids from a fixed list.
type scripted struct{ ids []string }

func (s *scripted) NewID(string) string {
	id := s.ids[0]
	s.ids = s.ids[1:]
	return id
}

func TestGeneratedIDCollisionIsRegenerated(t *testing.T) {
	e, _, root := newRoot(t)
	a := add(t, e, root, Spec{Kind: "div"})
	Strict = true
	t.Cleanup(func() { Strict = false })

	e.IDs = &scripted{ids: []string{a.ID(), a.ID(), "p-fresh", "p-fresh", "span-fresh"}}
	b, err := e.AddChild(root, Spec{Kind: "p"}, End)
	require.NoError(t, err)
	require.Equal(t, "p-fresh", b.ID())

	cp, err := e.Duplicate(b, root)
	require.NoError(t, err)
	require.Equal(t, "span-fresh", cp.ID())
	requireUniqueIDs(t, root)
}

func TestAddChildWithSlotNameDelegatesToSlot(t *testing.T) {
	e, _, root := newRoot(t)
	card := add(t, e, root, Spec{Kind: "Card"})
	e.SetSlotText(card, "default", "text first")

	b, err := e.AddChild(card, Spec{Kind: "Button", ParentSlotName: "default"}, End)
	require.NoError(t, err)
	require.Empty(t, card.Children())
	s := card.Slot("default")
	require.True(t, s.IsList())
	require.Equal(t, "", s.Text())
	require.Equal(t, []*Block{b}, s.Blocks())
	require.Equal(t, "default", b.SlotName())
	requireOwnership(t, root)
}

func TestAddChildAfterFollowsSiblingOwnership(t *testing.T) {
	e, _, root := newRoot(t)
	card := add(t, e, root, Spec{Kind: "Card"})
	x, err := e.InsertSlotBlock(card, "default", Spec{Kind: "Button"}, End)
	require.NoError(t, err)
	y, err := e.InsertSlotBlock(card, "default", Spec{Kind: "Button"}, End)
	require.NoError(t, err)

	mid, err := e.AddChildAfter(card, Spec{Kind: "Badge"}, x)
	require.NoError(t, err)
	require.Equal(t, []*Block{x, mid, y}, card.Slot("default").Blocks())

	other := add(t, e, root, Spec{Kind: "div"})
	tail, err := e.AddChildAfter(card, Spec{Kind: "p"}, other)
	require.NoError(t, err)
	require.Equal(t, []*Block{tail}, card.Children())
}

func TestRemoveChild(t *testing.T) {
	e, rec, root := newRoot(t)
	a := add(t, e, root, Spec{Kind: "div", Children: []Spec{{Kind: "p"}}})
	inner := a.Children()[0]
	rec.Reset()

	require.True(t, e.RemoveChild(root, a))
	require.Nil(t, Find(root, a.ID()))
	require.Nil(t, Find(root, inner.ID()))
	require.Nil(t, a.Parent())
	require.Equal(t, []string{"destroyed:" + a.ID(), "mutated:root"}, rec.Kinds())

	require.False(t, e.RemoveChild(root, a))
	require.False(t, e.RemoveChild(root, inner))
}

func TestRemoveChildFromSlot(t *testing.T) {
	e, _, root := newRoot(t)
	card := add(t, e, root, Spec{Kind: "Card"})
	b, err := e.InsertSlotBlock(card, "actions", Spec{Kind: "Button"}, End)
	require.NoError(t, err)
	require.True(t, e.RemoveChild(card, b))
	require.Empty(t, card.Slot("actions").Blocks())
	require.True(t, card.Slot("actions").IsList())
}

func TestFindReachesDeepSlotContent(t *testing.T) {
	e, _, root := newRoot(t)
	card := add(t, e, root, Spec{Kind: "Card"})
	first, err := e.InsertSlotBlock(card, "default", Spec{Kind: "Button"}, End)
	require.NoError(t, err)
	second, err := e.InsertSlotBlock(card, "default", Spec{Kind: "Badge"}, End)
	require.NoError(t, err)
	require.Same(t, second, Find(root, second.ID()))
	require.Same(t, first, Find(root, first.ID()))

	dialog, err := e.InsertSlotBlock(card, "actions", Spec{Kind: "Dialog"}, End)
	require.NoError(t, err)
	btn, err := e.InsertSlotBlock(dialog, "body-content", Spec{Kind: "Button"}, End)
	require.NoError(t, err)
	deep, err := e.InsertSlotBlock(btn, "prefix", Spec{Kind: "span"}, End)
	require.NoError(t, err)
	require.Same(t, deep, Find(root, deep.ID()))
	require.Nil(t, Find(root, "nope"))

	owner, slot := FindSlot(root, ident.SlotID(dialog.ID(), "body-content"))
	require.Same(t, dialog, owner)
	require.Equal(t, "body-content", slot.Name)
	require.Equal(t, 7, Count(root))
	requireUniqueIDs(t, root)
	requireOwnership(t, root)
}

func TestSlotLifecycle(t *testing.T) {
	e, rec, root := newRoot(t)
	card := add(t, e, root, Spec{Kind: "Card"})

	s := e.AddSlot(card, "title")
	require.Equal(t, card.ID()+":title", s.ID)
	require.Same(t, s, e.AddSlot(card, "title"))
	require.True(t, card.SlotEditable("title"))
	require.False(t, card.SlotEditable("missing"))

	b, err := e.InsertSlotBlock(card, "title", Spec{Kind: "Button"}, End)
	require.NoError(t, err)
	require.False(t, card.SlotEditable("title"))

	rec.Reset()
	e.SetSlotText(card, "title", "<em>plain</em>")
	require.Equal(t, "<em>plain</em>", card.Slot("title").Text())
	require.False(t, card.Slot("title").IsList())
	require.Nil(t, Find(root, b.ID()))
	require.Nil(t, b.Parent())
	require.Equal(t, []string{"destroyed:" + b.ID(), "mutated:" + card.ID()}, rec.Kinds())

	kept, err := e.InsertSlotBlock(card, "actions", Spec{Kind: "Button"}, End)
	require.NoError(t, err)
	e.RemoveSlot(card, "actions")
	require.Nil(t, card.Slot("actions"))
	require.Nil(t, Find(root, kept.ID()))

	e.AddSlot(root, "banner")
	require.False(t, root.SlotEditable("banner"))
}

func TestInsertSlotBlockClampsIndex(t *testing.T) {
	e, _, root := newRoot(t)
	card := add(t, e, root, Spec{Kind: "Card"})
	a, err := e.InsertSlotBlock(card, "default", Spec{Kind: "p"}, 10)
	require.NoError(t, err)
	b, err := e.InsertSlotBlock(card, "default", Spec{Kind: "p"}, -1)
	require.NoError(t, err)
	require.Equal(t, []*Block{b, a}, card.Slot("default").Blocks())

	_, err = e.InsertSlotBlock(card, "default", RootTemplate(), End)
	require.ErrorIs(t, err, ErrRootProtected)
}

func TestDuplicateOffsetsAbsoluteBlocks(t *testing.T) {
	e, _, root := newRoot(t)
	box := add(t, e, root, Spec{
		Kind:     "div",
		Styles:   style.Set{Base: style.Map{"position": "absolute", "left": "100px", "top": "50px"}},
		Children: []Spec{{Kind: "p", Slots: map[string]SlotSpec{"x": {IsList: true, Blocks: []Spec{{Kind: "span"}}}}}},
	})
	after := add(t, e, root, Spec{Kind: "span"})

	cp, err := e.Duplicate(box, root)
	require.NoError(t, err)
	require.Equal(t, "120px", cp.Style("left"))
	require.Equal(t, "70px", cp.Style("top"))
	require.Equal(t, "100px", box.Style("left"))
	require.Equal(t, []*Block{box, cp, after}, root.Children())

	orig := map[string]bool{}
	for _, id := range IDs(box) {
		orig[id] = true
	}
	for _, id := range IDs(cp) {
		require.False(t, orig[id], "reused id %s", id)
	}
	require.Equal(t, Count(box), Count(cp))
	requireUniqueIDs(t, root)
	requireOwnership(t, root)
}

func TestDuplicateKeepsStaticPositionAndSlotOwnership(t *testing.T) {
	e, _, root := newRoot(t)
	card := add(t, e, root, Spec{Kind: "Card"})
	b, err := e.InsertSlotBlock(card, "default", Spec{Kind: "Button", Styles: style.Set{Base: style.Map{"left": "5px"}}}, End)
	require.NoError(t, err)
	cp, err := e.Duplicate(b, root)
	require.NoError(t, err)
	require.Equal(t, "5px", cp.Style("left"))
	require.Equal(t, []*Block{b, cp}, card.Slot("default").Blocks())
	require.Equal(t, "default", cp.SlotName())

	_, err = e.Duplicate(root, root)
	require.ErrorIs(t, err, ErrRootProtected)

	loose, err := e.New(Spec{Kind: "p"})
	require.NoError(t, err)
	cp2, err := e.Duplicate(loose, root)
	require.NoError(t, err)
	require.Same(t, root, cp2.Parent())
}

func TestMove(t *testing.T) {
	e, rec, root := newRoot(t)
	card := add(t, e, root, Spec{Kind: "Card"})
	b, err := e.InsertSlotBlock(card, "default", Spec{Kind: "Button"}, End)
	require.NoError(t, err)
	rec.Reset()

	require.NoError(t, e.Move(b, root, "", 0))
	require.Equal(t, []*Block{b, card}, root.Children())
	require.Empty(t, card.Slot("default").Blocks())
	require.Equal(t, "", b.SlotName())
	require.Equal(t, []string{"mutated:" + card.ID(), "mutated:root", "mutated:" + b.ID()}, rec.Kinds())
	requireOwnership(t, root)

	require.NoError(t, e.Move(b, card, "actions", End))
	require.Equal(t, "actions", b.SlotName())
	requireOwnership(t, root)

	require.ErrorIs(t, e.Move(root, card, "", 0), ErrRootProtected)
	require.ErrorIs(t, e.Move(card, b, "prefix", 0), ErrInvalidMove)
	require.ErrorIs(t, e.Move(card, card, "", 0), ErrInvalidMove)
	img := add(t, e, root, Spec{Kind: "img"})
	require.ErrorIs(t, e.Move(b, img, "", 0), ErrLeafKind)
}

func TestBlockStyleHelpers(t *testing.T) {
	e, _, root := newRoot(t)
	b := add(t, e, root, Spec{Kind: "div", Styles: style.Set{Base: style.Map{"display": "block"}}})

	before := b.Styles.Clone()
	require.NoError(t, b.ToggleVisibility(style.Mobile))
	require.False(t, b.IsVisible(style.Mobile))
	require.True(t, b.IsVisible(style.Desktop))
	require.NoError(t, b.ToggleVisibility(style.Mobile))
	require.Equal(t, before, b.Styles)
	require.ErrorIs(t, root.ToggleVisibility(style.Desktop), ErrRootProtected)

	require.NoError(t, b.SetPadding(style.Desktop, "10px"))
	require.Equal(t, "10px", b.Padding(style.Desktop))
	require.NoError(t, b.SetPadding(style.Desktop, "1px 2px 3px 4px"))
	require.Equal(t, "1px 2px 3px 4px", b.Padding(style.Desktop))
	require.NoError(t, b.SetMargin(style.Tablet, "0px auto"))
	require.Equal(t, "0px auto", b.Margin(style.Tablet))

	b.SetStyle(style.Tablet, "background-color", "red")
	v, ok := b.StyleAt(style.Tablet, "backgroundColor")
	require.True(t, ok)
	require.Equal(t, "red", v)
	require.Nil(t, b.Style("backgroundColor"))
}

func TestDescriptionAndIcon(t *testing.T) {
	e, _, root := newRoot(t)
	cat := catalog.Default()
	btn := add(t, e, root, Spec{Kind: "Button"})
	require.Equal(t, "Hash", root.Icon(cat))
	require.Equal(t, "MousePointer", btn.Icon(cat))
	require.Equal(t, "Square", btn.Icon(nil))
	require.Equal(t, "Button", btn.Description())
	btn.Label = "Save"
	require.Equal(t, "Save", btn.Description())

	spec := SpecFor(cat, "Button")
	require.Equal(t, "Submit", spec.Props["label"])
	spec.Props["label"] = "changed"
	b, _ := cat.Lookup("Button")
	require.Equal(t, "Submit", b.DefaultProps["label"])
}

func TestCloneRetainingIDs(t *testing.T) {
	e, _, root := newRoot(t)
	add(t, e, root, Spec{Kind: "div", Props: map[string]any{"nested": map[string]any{"k": "v"}}})
	cp, err := e.Clone(root, false)
	require.NoError(t, err)
	require.Equal(t, IDs(root), IDs(cp))
	cp.Children()[0].Props["nested"].(map[string]any)["k"] = "changed"
	require.Equal(t, "v", root.Children()[0].Props["nested"].(map[string]any)["k"])
}
